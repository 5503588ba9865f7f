package integration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// instantClock records requested waits and fires them almost immediately.
type instantClock struct {
	mu        sync.Mutex
	requested []time.Duration
}

func (c *instantClock) Now() time.Time {
	return time.Now()
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.requested = append(c.requested, d)
	c.mu.Unlock()

	return time.After(time.Millisecond)
}

func (c *instantClock) Requested() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]time.Duration(nil), c.requested...)
}

// jarServer serves fixed payloads by path and counts requests.
type jarServer struct {
	*httptest.Server

	hits atomic.Int64
}

func newJarServer(t *testing.T, payloads map[string][]byte) *jarServer {
	t.Helper()

	s := new(jarServer)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)

		payload, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write(payload)
	}))

	t.Cleanup(s.Close)

	return s
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// entry describes one artifact in the generated configuration.
type entry struct {
	group string
	name  string
	url   string
	hash  string
}

// writeConfig renders a TOML configuration into dir.
func writeConfig(t *testing.T, dir string, entries ...entry) string {
	t.Helper()

	var b strings.Builder

	b.WriteString("[java]\nflags = [\"-Xmx2G\"]\n\n")
	b.WriteString("[game]\nmain_jar = \"paper\"\nflags = [\"--nogui\"]\n\n")
	b.WriteString("[provisioner]\npoll_interval = \"5s\"\n\n")

	for _, e := range entries {
		fmt.Fprintf(&b, "[%s.%s]\nurl = %q\nhash = %q\n\n", e.group, e.name, e.url, e.hash)
	}

	path := filepath.Join(dir, "minecraft.toml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	return path
}

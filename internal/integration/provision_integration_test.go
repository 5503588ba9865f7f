package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
	"github.com/oshokin/mc-provisioner/internal/progress"
	"github.com/oshokin/mc-provisioner/internal/repository/lock"
	"github.com/oshokin/mc-provisioner/internal/service/assemble"
	"github.com/oshokin/mc-provisioner/internal/service/provision"
)

var (
	paperJar     = []byte("paper server jar")
	worldeditJar = []byte("worldedit plugin jar")
	geyserJar    = []byte("geyser plugin jar")
)

func fullSetup(t *testing.T) (string, *jarServer) {
	t.Helper()

	server := newJarServer(t, map[string][]byte{
		"/paper.jar":     paperJar,
		"/worldedit.jar": worldeditJar,
		"/geyser.jar":    geyserJar,
	})

	dir := t.TempDir()
	writeConfig(t, dir,
		entry{group: "bin", name: "paper", url: server.URL + "/paper.jar", hash: sha256Hex(paperJar)},
		entry{group: "plugins", name: "worldedit", url: server.URL + "/worldedit.jar", hash: sha256Hex(worldeditJar)},
		entry{group: "plugins", name: "geyser", url: server.URL + "/geyser.jar", hash: sha256Hex(geyserJar)},
	)

	return dir, server
}

// TestProvision_Run_FullPipeline downloads, confirms, assembles and pins every artifact,
// and a second run performs zero fetches.
//
//nolint:funlen // Integration test requires comprehensive setup and verification.
func TestProvision_Run_FullPipeline(t *testing.T) {
	t.Parallel()

	dir, server := fullSetup(t)
	fakeClock := new(instantClock)

	var table bytes.Buffer

	options := &provision.Options{
		Dir:      dir,
		Clock:    fakeClock,
		Random:   func(int) int { return 0 },
		Reporter: progress.NewPlainReporter(&table),
	}

	require.NoError(t, provision.Run(context.Background(), options))
	require.EqualValues(t, 3, server.hits.Load())

	// One pause between each pair of fetches, none after the last.
	require.Equal(t, []time.Duration{5 * time.Minute, 5 * time.Minute}, fakeClock.Requested())

	for path, want := range map[string][]byte{
		"bin/paper.jar":               paperJar,
		"plugins/worldedit.jar":       worldeditJar,
		"plugins/geyser.jar":          geyserJar,
		"build/paper.jar":             paperJar,
		"build/plugins/geyser.jar":    geyserJar,
		"build/plugins/worldedit.jar": worldeditJar,
	} {
		got, err := os.ReadFile(filepath.Join(dir, path))
		require.NoError(t, err, path)
		require.Equal(t, want, got, path)
	}

	script, err := os.ReadFile(filepath.Join(dir, assemble.BuildDir, assemble.ScriptName))
	require.NoError(t, err)
	require.Contains(t, string(script), "exec java -Xmx2G -jar paper.jar --nogui")

	require.Contains(t, table.String(), "Artifacts ready: 3/3")
	require.FileExists(t, filepath.Join(dir, "minecraft.log"))
	require.NoFileExists(t, filepath.Join(dir, provision.MarkerFilename))

	pinned, err := lock.NewFileRepository(filepath.Join(dir, "minecraft.lock.yaml")).Load(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, pinned.RunID)
	require.Len(t, pinned.Artifacts, 3)

	pin, ok := pinned.Find(artifact.GroupPlugins, "geyser")
	require.True(t, ok)
	require.Equal(t, sha256Hex(geyserJar), pin.Digest)
	require.Equal(t, "plugins/geyser.jar", filepath.ToSlash(pin.Path))

	// Second run: everything is valid, nothing is fetched.
	require.NoError(t, provision.Run(context.Background(), options))
	require.EqualValues(t, 3, server.hits.Load())

	again, err := os.ReadFile(filepath.Join(dir, "plugins", "geyser.jar"))
	require.NoError(t, err)
	require.Equal(t, geyserJar, again)
}

// TestProvision_Run_RejectedArtifactIsNeverWritten waits for a manually supplied
// jar when the served content fails verification.
func TestProvision_Run_RejectedArtifactIsNeverWritten(t *testing.T) {
	t.Parallel()

	server := newJarServer(t, map[string][]byte{"/paper.jar": []byte("tampered")})
	dir := t.TempDir()
	writeConfig(t, dir, entry{group: "bin", name: "paper", url: server.URL + "/paper.jar", hash: sha256Hex(paperJar)})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := provision.Run(ctx, &provision.Options{
		Dir:      dir,
		Clock:    new(instantClock),
		Reporter: progress.NewPlainReporter(new(bytes.Buffer)),
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoFileExists(t, filepath.Join(dir, "bin", "paper.jar"))
	require.NoFileExists(t, filepath.Join(dir, "minecraft.lock.yaml"))
}

// TestProvision_Run_TransferFailure aborts with an error naming the artifact.
func TestProvision_Run_TransferFailure(t *testing.T) {
	t.Parallel()

	server := newJarServer(t, map[string][]byte{})
	dir := t.TempDir()
	writeConfig(t, dir, entry{group: "bin", name: "paper", url: server.URL + "/paper.jar", hash: sha256Hex(paperJar)})

	err := provision.Run(context.Background(), &provision.Options{Dir: dir, Clock: new(instantClock)})
	require.ErrorContains(t, err, "bin/paper")
	require.NoFileExists(t, filepath.Join(dir, provision.MarkerFilename))
}

// TestProvision_ScanAndPin reports missing artifacts without fetching and pins what is present.
func TestProvision_ScanAndPin(t *testing.T) {
	t.Parallel()

	dir, server := fullSetup(t)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "paper.jar"), paperJar, 0o600))

	result, err := provision.Scan(context.Background(), &provision.Options{Dir: dir})
	require.NoError(t, err)
	require.Empty(t, result.Missing.Names(artifact.GroupBin))
	require.Equal(t, []string{"geyser", "worldedit"}, result.Missing.Names(artifact.GroupPlugins))
	require.Zero(t, server.hits.Load())

	pinned, err := provision.Pin(context.Background(), &provision.Options{Dir: dir})
	require.NoError(t, err)
	require.Len(t, pinned.Artifacts, 1)
	require.Equal(t, "paper", pinned.Artifacts[0].Name)
	require.Zero(t, server.hits.Load())
}

// TestProvision_Run_RefusesConcurrentRun keeps a live run's directory untouched.
func TestProvision_Run_RefusesConcurrentRun(t *testing.T) {
	t.Parallel()

	dir, server := fullSetup(t)
	marker := filepath.Join(dir, provision.MarkerFilename)
	require.NoError(t, os.WriteFile(marker, []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := provision.Run(context.Background(), &provision.Options{Dir: dir, Clock: new(instantClock)})
	require.ErrorIs(t, err, provision.ErrAlreadyRunning)
	require.FileExists(t, marker)
	require.Zero(t, server.hits.Load())
}

package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/mc-provisioner/internal/logger"
)

// MarkerFilename marks that a provisioner is working in the directory right now.
const MarkerFilename = "provisioner.marker"

// markerFileMode is the permission of the marker file.
const markerFileMode = 0o600

// ErrAlreadyRunning is returned when a live provisioner owns the directory.
var ErrAlreadyRunning = errors.New("another provisioner is running in this directory")

// Marker is an exclusive claim on a provisioning directory.
type Marker struct {
	path string
}

// AcquireMarker claims dir for this process. A marker left by a process that no
// longer exists is removed and replaced.
func AcquireMarker(ctx context.Context, dir string) (*Marker, error) {
	path := filepath.Join(dir, MarkerFilename)

	logger.Debug(ctx, "Checking for the presence of a run marker")

	for range 2 {
		file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_EXCL|os.O_WRONLY, markerFileMode)
		if err == nil {
			_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()))
			if closeErr := file.Close(); writeErr == nil {
				writeErr = closeErr
			}

			if writeErr != nil {
				_ = os.Remove(path)

				return nil, fmt.Errorf("write run marker: %w", writeErr)
			}

			return &Marker{path: path}, nil
		}

		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create run marker: %w", err)
		}

		owner, alive := markerOwner(path)
		if alive {
			return nil, fmt.Errorf("%w: pid %d", ErrAlreadyRunning, owner)
		}

		logger.InfoKV(ctx, "Removing stale run marker", "path", path, "pid", owner)

		if err = os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale run marker: %w", err)
		}
	}

	return nil, ErrAlreadyRunning
}

// Release removes the marker. Releasing twice is harmless.
func (m *Marker) Release() error {
	if m == nil {
		return nil
	}

	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove run marker: %w", err)
	}

	return nil
}

// markerOwner reads the PID stored in the marker and reports whether that
// process still exists. Unreadable markers count as stale.
func markerOwner(path string) (int, bool) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 || pid == os.Getpid() {
		return pid, false
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		// Process table unreadable, assume the owner is alive.
		return pid, true
	}

	return pid, process != nil
}

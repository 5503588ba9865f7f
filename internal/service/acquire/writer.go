package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/mc-provisioner/internal/digest"
	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
)

const (
	// DefaultFileMode is applied to written artifacts.
	DefaultFileMode os.FileMode = 0o644

	// DefaultDirMode is applied to group directories created on demand.
	DefaultDirMode os.FileMode = 0o755
)

// Writer persists verified artifact content at its target path.
type Writer interface {
	Write(ctx context.Context, spec artifact.Spec, path string, data []byte) error
}

// AtomicWriter swaps the new content in with go-update so a reader never sees a
// partially written artifact. go-update re-checks the checksum for algorithms
// known to the crypto package.
type AtomicWriter struct {
	// mode is the permission of the written file.
	mode os.FileMode
}

// NewAtomicWriter creates a writer producing files with mode.
func NewAtomicWriter(mode os.FileMode) *AtomicWriter {
	if mode == 0 {
		mode = DefaultFileMode
	}

	return &AtomicWriter{
		mode: mode,
	}
}

// Write replaces the file at path with data.
func (w *AtomicWriter) Write(_ context.Context, spec artifact.Spec, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirMode); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	// go-update renames the current target aside, so one has to exist.
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		placeholder, createErr := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY, w.mode)
		if createErr != nil {
			return fmt.Errorf("create target: %w", createErr)
		}

		if err = placeholder.Close(); err != nil {
			return fmt.Errorf("create target: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("stat target: %w", err)
	}

	options := goupdate.Options{
		TargetPath: path,
		TargetMode: w.mode,
	}

	algorithm := digest.Algorithm(spec.Algorithm)
	if hash, ok := algorithm.CryptoHash(); ok {
		checksum, err := digest.Decode(algorithm, spec.ExpectedDigest)
		if err != nil {
			return err
		}

		options.Checksum = checksum
		options.Hash = hash
	}

	if err := goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("apply %s: %w", path, err)
	}

	return nil
}

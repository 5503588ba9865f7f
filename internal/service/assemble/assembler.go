package assemble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/multierr"

	"github.com/oshokin/mc-provisioner/internal/config"
	"github.com/oshokin/mc-provisioner/internal/digest"
	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
	"github.com/oshokin/mc-provisioner/internal/logger"
)

const (
	// ConfigDir holds operator-managed server files such as server.properties.
	ConfigDir = "config"
	// BuildDir is the assembled server directory.
	BuildDir = "build"
	// ScriptName is the launch script written to the build directory.
	ScriptName = "start.sh"

	scriptMode os.FileMode = 0o755
	fileMode   os.FileMode = 0o644
	dirMode    os.FileMode = 0o755
)

var (
	// ErrMainJarUnknown is returned when game.main_jar is not declared in the bin group.
	ErrMainJarUnknown = errors.New("main jar is not declared in the bin group")
	// ErrNotDirectory is returned when a source or the build path is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

// scriptTemplate renders the launch script.
//
//nolint:gochecknoglobals // Parsed once, read-only afterwards.
var scriptTemplate = template.Must(template.New(ScriptName).
	Funcs(template.FuncMap{"quote": quote}).
	Parse(`#!/bin/sh
cd "$(dirname "$0")" || exit 1
exec {{quote .Binary}}{{range .JavaFlags}} {{quote .}}{{end}} -jar {{quote .MainJar}}{{range .GameFlags}} {{quote .}}{{end}}
`))

// scriptData feeds scriptTemplate.
type scriptData struct {
	Binary    string
	JavaFlags []string
	MainJar   string
	GameFlags []string
}

// Report lists what an assembly changed, by path relative to the build directory.
type Report struct {
	// Copied lists files that were created or rewritten.
	Copied []string
	// Unchanged lists files whose content was already up to date.
	Unchanged []string
}

// Assembler builds root/build from root/config, root/bin and root/plugins.
type Assembler struct {
	root string
}

// New creates an assembler for root.
func New(root string) *Assembler {
	return &Assembler{
		root: root,
	}
}

// source maps a directory below root to its destination below the build directory.
type source struct {
	dir    string
	target string
}

// Assemble merges the sources into the build directory and writes the launch script.
func (a *Assembler) Assemble(ctx context.Context, cfg *config.Config) (*Report, error) {
	if _, ok := cfg.Lookup(artifact.GroupBin, cfg.Game.MainJar); !ok {
		return nil, fmt.Errorf("%w: %q", ErrMainJarUnknown, cfg.Game.MainJar)
	}

	buildDir := filepath.Join(a.root, BuildDir)
	if err := os.MkdirAll(buildDir, dirMode); err != nil {
		return nil, fmt.Errorf("create build directory: %w", err)
	}

	sources := []source{
		{dir: ConfigDir, target: "."},
		{dir: artifact.GroupBin, target: "."},
		{dir: artifact.GroupPlugins, target: artifact.GroupPlugins},
	}

	report := new(Report)

	for _, src := range sources {
		if err := a.merge(ctx, src, buildDir, report); err != nil {
			return report, err
		}
	}

	script, err := renderScript(cfg)
	if err != nil {
		return report, err
	}

	changed, err := writeIfChanged(filepath.Join(buildDir, ScriptName), script, scriptMode)
	if err != nil {
		return report, fmt.Errorf("write %s: %w", ScriptName, err)
	}

	record(report, ScriptName, changed)

	logger.InfoKV(ctx, "Build assembled",
		"path", buildDir,
		"copied", len(report.Copied),
		"unchanged", len(report.Unchanged))

	return report, nil
}

func (a *Assembler) merge(ctx context.Context, src source, buildDir string, report *Report) error {
	srcDir := filepath.Join(a.root, src.dir)

	info, err := os.Stat(srcDir)
	if errors.Is(err, fs.ErrNotExist) {
		logger.DebugKV(ctx, "Skipping absent source directory", "path", srcDir)

		return nil
	}

	if err != nil {
		return fmt.Errorf("stat %s: %w", srcDir, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w", srcDir, ErrNotDirectory)
	}

	return filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		// Hidden entries include interrupted write leftovers such as .paper.jar.new.
		if path != srcDir && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		target := filepath.Join(src.target, rel)

		changed, err := copyIfChanged(path, filepath.Join(buildDir, target))
		if err != nil {
			return fmt.Errorf("copy %s: %w", path, err)
		}

		record(report, filepath.ToSlash(target), changed)

		return nil
	})
}

func record(report *Report, path string, changed bool) {
	if changed {
		report.Copied = append(report.Copied, path)
	} else {
		report.Unchanged = append(report.Unchanged, path)
	}
}

func renderScript(cfg *config.Config) ([]byte, error) {
	binary := cfg.Java.Binary
	if binary == "" {
		binary = config.DefaultJavaBinary
	}

	var buf bytes.Buffer

	err := scriptTemplate.Execute(&buf, scriptData{
		Binary:    binary,
		JavaFlags: cfg.Java.Flags,
		MainJar:   cfg.Game.MainJar + artifact.Extension,
		GameFlags: cfg.Game.Flags,
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", ScriptName, err)
	}

	return buf.Bytes(), nil
}

// quote leaves plain words alone and single-quotes anything the shell would reinterpret.
func quote(s string) string {
	if s != "" && strings.IndexFunc(s, unsafeShellRune) < 0 {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:,+@%", r):
		return false
	default:
		return true
	}
}

// sameContent reports whether both files exist with identical bytes.
func sameContent(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}

	dstInfo, err := os.Stat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	if !dstInfo.Mode().IsRegular() || srcInfo.Size() != dstInfo.Size() {
		return false, nil
	}

	srcSum, err := digest.SumFile(digest.BLAKE3, src)
	if err != nil {
		return false, err
	}

	dstSum, err := digest.SumFile(digest.BLAKE3, dst)
	if err != nil {
		return false, err
	}

	return srcSum == dstSum, nil
}

func copyIfChanged(src, dst string) (bool, error) {
	same, err := sameContent(src, dst)
	if err != nil || same {
		return false, err
	}

	if err = os.MkdirAll(filepath.Dir(dst), dirMode); err != nil {
		return false, err
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return false, err
	}

	//nolint:errcheck // Read-only handle.
	defer in.Close()

	return true, replaceFile(dst, fileMode, func(w io.Writer) error {
		_, copyErr := io.Copy(w, in)

		return copyErr
	})
}

func writeIfChanged(path string, data []byte, mode os.FileMode) (bool, error) {
	current, err := os.ReadFile(filepath.Clean(path))
	if err == nil && bytes.Equal(current, data) {
		return false, os.Chmod(path, mode)
	}

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	return true, replaceFile(path, mode, func(w io.Writer) error {
		_, writeErr := w.Write(data)

		return writeErr
	})
}

// replaceFile writes through a temporary sibling and renames it over path.
func replaceFile(path string, mode os.FileMode, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(tmp.Name()))
		}
	}()

	if err = fill(tmp); err != nil {
		return multierr.Append(err, tmp.Close())
	}

	if err = multierr.Append(tmp.Sync(), tmp.Close()); err != nil {
		return err
	}

	if err = os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

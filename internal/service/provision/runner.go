package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/mc-provisioner/internal/clock"
	"github.com/oshokin/mc-provisioner/internal/config"
	"github.com/oshokin/mc-provisioner/internal/digest"
	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
	"github.com/oshokin/mc-provisioner/internal/logger"
	"github.com/oshokin/mc-provisioner/internal/progress"
	"github.com/oshokin/mc-provisioner/internal/repository/lock"
	"github.com/oshokin/mc-provisioner/internal/service/acquire"
	"github.com/oshokin/mc-provisioner/internal/service/assemble"
	"github.com/oshokin/mc-provisioner/internal/service/fetch"
	"github.com/oshokin/mc-provisioner/internal/service/inventory"
	"github.com/oshokin/mc-provisioner/internal/service/readiness"
	"github.com/oshokin/mc-provisioner/internal/version"
	"github.com/oshokin/mc-provisioner/internal/watch"
)

// groupDirMode is applied to the bin and plugins directories.
const groupDirMode = 0o755

var errUnknownLogLevel = errors.New("unknown log level")

// Options are inputs accepted by the provisioner entry points.
type Options struct {
	// ConfigPath is the configuration file; relative paths are resolved against Dir.
	ConfigPath string
	// Dir is the provisioning directory holding bin, plugins, config and build.
	Dir string
	// LogLevel overrides the console log level from the configuration.
	LogLevel string
	// Fetcher replaces the HTTP fetcher, mostly for tests.
	Fetcher fetch.Fetcher
	// Clock replaces the real clock, mostly for tests.
	Clock clock.Clock
	// Random replaces the pacing random source, mostly for tests.
	Random func(n int) int
	// Reporter replaces the terminal-detected readiness reporter.
	Reporter progress.Reporter
}

// runner holds the state of a single command execution.
// It is intentionally unexported, callers use the entry points below.
type runner struct {
	opts     *Options             // Inputs of the run.
	root     string               // Absolute provisioning directory.
	cfg      *config.Config       // Validated configuration.
	runID    string               // Correlates log lines and the lock file.
	clock    clock.Clock          // Drives pacing and polling.
	cache    *digest.Cache        // Shared by the scanner, the gate and pinning.
	locks    lock.Repository      // Lock file storage.
	marker   *Marker              // Exclusive claim on root, nil for read-only commands.
	closeLog func() error         // Flushes and closes the log file.
}

// Run executes the whole pipeline.
func Run(ctx context.Context, opts *Options) error {
	return execute(ctx, opts, "provision", true, func(ctx context.Context, r *runner) error {
		return r.provision(ctx)
	})
}

// Scan reports the state of every artifact without changing anything.
func Scan(ctx context.Context, opts *Options) (*inventory.Result, error) {
	var result *inventory.Result

	err := execute(ctx, opts, "scan", false, func(ctx context.Context, r *runner) error {
		var scanErr error

		result, scanErr = r.scan(ctx)

		return scanErr
	})

	return result, err
}

// Wait blocks until every configured artifact is on disk with the expected digest.
func Wait(ctx context.Context, opts *Options) error {
	return execute(ctx, opts, "wait", false, func(ctx context.Context, r *runner) error {
		return r.wait(ctx)
	})
}

// Assemble builds the server directory from what is currently on disk.
func Assemble(ctx context.Context, opts *Options) error {
	return execute(ctx, opts, "assemble", true, func(ctx context.Context, r *runner) error {
		_, err := assemble.New(r.root).Assemble(ctx, r.cfg)

		return err
	})
}

// Pin records the digests of the jars currently on disk in the lock file.
func Pin(ctx context.Context, opts *Options) (*artifact.Lock, error) {
	var pinned *artifact.Lock

	err := execute(ctx, opts, "pin", true, func(ctx context.Context, r *runner) error {
		var pinErr error

		pinned, pinErr = r.pin(ctx)

		return pinErr
	})

	return pinned, err
}

// execute prepares a runner, runs body and releases every resource.
func execute(
	ctx context.Context,
	opts *Options,
	command string,
	exclusive bool,
	body func(context.Context, *runner) error,
) error {
	r, err := newRunner(opts)
	if err != nil {
		return err
	}

	ctx, err = r.start(ctx, command, exclusive)
	defer r.cleanup(ctx)

	if err != nil {
		logger.ErrorKV(ctx, "Unable to start", "command", command, "error", err)

		return err
	}

	if err = body(ctx, r); err != nil {
		logger.ErrorKV(ctx, "Command failed", "command", command, "error", err)

		return err
	}

	logger.InfoKV(ctx, "Command completed", "command", command)

	return nil
}

// newRunner resolves paths and loads the configuration before any I/O on artifacts.
func newRunner(opts *Options) (*runner, error) {
	if opts == nil {
		opts = new(Options)
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve directory: %w", err)
	}

	cfg, err := config.Load(resolve(root, opts.ConfigPath, config.DefaultConfigFilename))
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	c := opts.Clock
	if c == nil {
		c = clock.Real()
	}

	return &runner{
		opts:  opts,
		root:  root,
		cfg:   cfg,
		runID: uuid.NewString(),
		clock: c,
		cache: digest.NewCache(digest.DefaultCacheExpiration),
		locks: lock.NewFileRepository(resolve(root, cfg.Provisioner.LockFile, config.DefaultLockFilename)),
	}, nil
}

// start opens the log file, tags the context logger and claims the directory.
func (r *runner) start(ctx context.Context, command string, exclusive bool) (context.Context, error) {
	levelName := r.opts.LogLevel
	if levelName == "" {
		levelName = r.cfg.Provisioner.LogLevel
	}

	level, ok := logger.ParseLogLevel(levelName)
	if !ok {
		return ctx, fmt.Errorf("%w: %q", errUnknownLogLevel, levelName)
	}

	logPath := resolve(r.root, r.cfg.Provisioner.LogFile, config.DefaultLogFilename)

	l, closeLog, err := logger.NewWithFile(level, zapcore.DebugLevel, logPath)
	if err != nil {
		return ctx, err
	}

	r.closeLog = closeLog

	ctx = logger.ToContext(ctx, l)
	ctx = logger.WithName(ctx, "mc-provisioner")
	ctx = logger.WithKV(ctx, "run_id", r.runID)

	logger.InfoKV(ctx, "Starting",
		"command", command,
		"version", version.Short(),
		"dir", r.root,
		"artifacts", len(r.cfg.Specs()))

	if exclusive {
		r.marker, err = AcquireMarker(ctx, r.root)
		if err != nil {
			return ctx, err
		}
	}

	return ctx, nil
}

// cleanup releases the marker and closes the log file.
func (r *runner) cleanup(ctx context.Context) {
	if err := r.marker.Release(); err != nil {
		logger.WarnKV(ctx, "Unable to remove run marker", "error", err)
	}

	if r.closeLog != nil {
		if err := r.closeLog(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
		}
	}
}

// provision runs every stage in order.
func (r *runner) provision(ctx context.Context) error {
	if err := r.prepareDirectories(ctx); err != nil {
		return err
	}

	specs := r.cfg.Specs()

	scanned, err := r.scan(ctx)
	if err != nil {
		return err
	}

	summary, err := r.orchestrator().Acquire(ctx, specs, scanned.Missing)
	if err != nil {
		return fmt.Errorf("acquire artifacts: %w", err)
	}

	if len(summary.Rejected) > 0 {
		logger.WarnKV(ctx, "Some artifacts failed verification and must be supplied manually",
			"rejected", summary.Rejected)
	}

	if err = r.wait(ctx); err != nil {
		return err
	}

	if r.cfg.Game.MainJar == "" {
		logger.Info(ctx, "No main jar configured, skipping assembly")
	} else if _, err = assemble.New(r.root).Assemble(ctx, r.cfg); err != nil {
		return fmt.Errorf("assemble build: %w", err)
	}

	_, err = r.writeLock(ctx, specs, true)

	return err
}

// prepareDirectories creates the group directories.
func (r *runner) prepareDirectories(ctx context.Context) error {
	for _, group := range artifact.Groups() {
		dir := filepath.Join(r.root, group)
		if err := os.MkdirAll(dir, groupDirMode); err != nil {
			return fmt.Errorf("create %s directory: %w", group, err)
		}

		logger.DebugKV(ctx, "Directory is ready", "path", dir)
	}

	return nil
}

func (r *runner) scan(ctx context.Context) (*inventory.Result, error) {
	result, err := inventory.NewScanner(r.root, r.cache).Scan(ctx, r.cfg.Specs())
	if err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}

	logger.InfoKV(ctx, "Scan finished",
		"artifacts", len(result.Records),
		"missing", result.Missing.Len())

	return result, nil
}

func (r *runner) orchestrator() *acquire.Orchestrator {
	settings := r.cfg.Provisioner

	fetcher := r.opts.Fetcher
	if fetcher == nil {
		userAgent := settings.UserAgent
		if userAgent == "" {
			userAgent = version.UserAgent()
		}

		fetcher = fetch.NewHTTPFetcher(
			fetch.WithClock(r.clock),
			fetch.WithTimeout(settings.FetchTimeout.Std()),
			fetch.WithUserAgent(userAgent),
		)
	}

	pacer := acquire.NewPacer(r.clock, settings.PaceMin, settings.PaceMax, acquire.WithRandom(r.opts.Random))

	return acquire.New(r.root, fetcher, acquire.WithPacer(pacer))
}

// wait runs the readiness gate over fresh records so confirmation never relies on the scan.
func (r *runner) wait(ctx context.Context) error {
	specs := r.cfg.Specs()

	records := make([]*artifact.Record, 0, len(specs))
	for _, spec := range specs {
		records = append(records, artifact.NewRecord(spec, r.root))
	}

	reporter := r.opts.Reporter
	if reporter == nil {
		reporter = progress.New(os.Stdout)
	}

	options := []readiness.Option{
		readiness.WithClock(r.clock),
		readiness.WithInterval(r.cfg.Provisioner.PollInterval.Std()),
		readiness.WithReporter(reporter),
	}

	if r.cfg.Provisioner.WatchEnabled() {
		if changes, stop := r.startWatcher(ctx); changes != nil {
			defer stop()

			options = append(options, readiness.WithChanges(changes))
		}
	}

	if _, err := readiness.NewGate(r.cache, options...).Wait(ctx, records); err != nil {
		return fmt.Errorf("wait for artifacts: %w", err)
	}

	return nil
}

// startWatcher watches the existing group directories. Failures only disable the early wake-up.
func (r *runner) startWatcher(ctx context.Context) (<-chan struct{}, func()) {
	var dirs []string

	for _, group := range artifact.Groups() {
		dir := filepath.Join(r.root, group)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}

	if len(dirs) == 0 {
		return nil, nil
	}

	w, err := watch.New(watch.Config{Dirs: dirs})
	if err != nil {
		logger.WarnKV(ctx, "Filesystem watcher unavailable, polling only", "error", err)

		return nil, nil
	}

	changes, err := w.Start(ctx)
	if err != nil {
		_ = w.Stop()

		logger.WarnKV(ctx, "Filesystem watcher unavailable, polling only", "error", err)

		return nil, nil
	}

	return changes, func() {
		if stopErr := w.Stop(); stopErr != nil {
			logger.WarnKV(ctx, "Unable to stop filesystem watcher", "error", stopErr)
		}
	}
}

func (r *runner) pin(ctx context.Context) (*artifact.Lock, error) {
	return r.writeLock(ctx, r.cfg.Specs(), false)
}

// writeLock records the artifacts on disk. With confirmed set every artifact
// must match its configured digest; otherwise actual digests are recorded and
// differences are logged.
func (r *runner) writeLock(ctx context.Context, specs []artifact.Spec, confirmed bool) (*artifact.Lock, error) {
	actor, err := DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Unable to detect host and user for the lock file", "error", err)
	}

	pinned := &artifact.Lock{
		RunID:       r.runID,
		Generated:   r.clock.Now(),
		GeneratedBy: actor,
		Artifacts:   make([]artifact.Pin, 0, len(specs)),
	}

	for _, spec := range specs {
		pin, ok, err := r.pinArtifact(ctx, spec, confirmed)
		if err != nil {
			return nil, err
		}

		if ok {
			pinned.Artifacts = append(pinned.Artifacts, pin)
		}
	}

	if err = r.locks.Save(ctx, pinned); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Lock file written", "path", r.locks.Path(), "artifacts", len(pinned.Artifacts))

	return pinned, nil
}

func (r *runner) pinArtifact(ctx context.Context, spec artifact.Spec, confirmed bool) (artifact.Pin, bool, error) {
	path := spec.Path(r.root)

	info, err := os.Stat(path)
	if err != nil {
		if !confirmed && errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Artifact is absent, not pinned", "artifact", spec.Key())

			return artifact.Pin{}, false, nil
		}

		return artifact.Pin{}, false, fmt.Errorf("stat %s: %w", spec.Key(), err)
	}

	algorithm := digest.Algorithm(spec.Algorithm)

	sum, err := r.cache.SumFile(algorithm, path)
	if err != nil {
		return artifact.Pin{}, false, err
	}

	if !digest.MatchesSum(algorithm, sum, spec.ExpectedDigest) {
		logger.WarnKV(ctx, "Artifact differs from configuration",
			"artifact", spec.Key(),
			"expected", digest.Normalize(spec.ExpectedDigest),
			"actual", sum)
	}

	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		rel = path
	}

	return artifact.Pin{
		Group:     spec.Group,
		Name:      spec.Name,
		Path:      rel,
		Algorithm: spec.Algorithm,
		Digest:    sum,
		Size:      info.Size(),
		Source:    spec.Source,
	}, true, nil
}

// resolve returns path, or fallback when path is empty, anchored at root when relative.
func resolve(root, path, fallback string) string {
	if path == "" {
		path = fallback
	}

	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(root, path)
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/mc-provisioner/internal/digest"
	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
)

const (
	// DefaultConfigFilename is the configuration file read when no path is given.
	DefaultConfigFilename = "minecraft.toml"

	// DefaultLogFilename is the file every run appends its log to.
	DefaultLogFilename = "minecraft.log"

	// DefaultLockFilename stores the digests confirmed by the last successful run.
	DefaultLockFilename = "minecraft.lock.yaml"

	// DefaultLogLevel is the console log level.
	DefaultLogLevel = "info"

	// DefaultPaceMin is the lower bound of the pause between downloads, in minutes.
	DefaultPaceMin = 5

	// DefaultPaceMax is the upper bound of the pause between downloads, in minutes.
	DefaultPaceMax = 15

	// DefaultPollInterval is how often the readiness gate re-checks artifacts.
	DefaultPollInterval = 5 * time.Second

	// DefaultFetchTimeout bounds a single artifact transfer.
	DefaultFetchTimeout = 30 * time.Minute

	// DefaultJavaBinary is the runtime invoked by the generated launch script.
	DefaultJavaBinary = "java"

	// DefaultFilePermissions is the permission expected on configuration files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnsupportedFormat is returned for file extensions other than TOML or YAML.
	errUnsupportedFormat = errors.New("unsupported configuration format")
	// errInvalidName is returned when an artifact name could escape its group directory.
	errInvalidName = errors.New("artifact name must be a plain file name")
	// errURLRequired is returned when an artifact entry has no source URL.
	errURLRequired = errors.New("artifact url must be provided")
	// errHashRequired is returned when an artifact entry has no expected hash.
	errHashRequired = errors.New("artifact hash must be provided")
	// errPaceRange is returned when the pacing bounds are inverted or negative.
	errPaceRange = errors.New("invalid pacing range")
	// errMainJarUnknown is returned when game.main_jar is not declared in the bin group.
	errMainJarUnknown = errors.New("main jar is not declared in the bin group")
)

// Entry declares one downloadable artifact.
type Entry struct {
	// URL is the source location of the artifact.
	URL string `toml:"url" yaml:"url"`
	// Hash is the expected hex digest of the artifact content.
	Hash string `toml:"hash" yaml:"hash"`
	// Algorithm optionally names the digest function (sha256 by default).
	Algorithm string `toml:"algorithm,omitempty" yaml:"algorithm,omitempty"`
}

// Java holds runtime settings for the launch script.
type Java struct {
	// Binary is the java executable name or path.
	Binary string `toml:"binary,omitempty" yaml:"binary,omitempty"`
	// Flags are passed to the runtime before -jar.
	Flags []string `toml:"flags" yaml:"flags"`
}

// Game holds server settings for the launch script.
type Game struct {
	// MainJar is the name of the bin artifact that starts the server.
	MainJar string `toml:"main_jar" yaml:"main_jar"`
	// Flags are passed to the server after the jar.
	Flags []string `toml:"flags" yaml:"flags"`
}

// Settings holds the ambient behaviour of the provisioner itself.
type Settings struct {
	// LogFile is the path of the persistent run log.
	LogFile string `toml:"log_file,omitempty" yaml:"log_file,omitempty"`
	// LogLevel is the console log level; the log file always records debug.
	LogLevel string `toml:"log_level,omitempty" yaml:"log_level,omitempty"`
	// LockFile is where confirmed digests are recorded after a run.
	LockFile string `toml:"lock_file,omitempty" yaml:"lock_file,omitempty"`
	// PaceMin is the minimum pause between downloads in whole minutes.
	PaceMin int `toml:"pace_min,omitempty" yaml:"pace_min,omitempty"`
	// PaceMax is the maximum pause between downloads in whole minutes.
	PaceMax int `toml:"pace_max,omitempty" yaml:"pace_max,omitempty"`
	// PollInterval is the readiness gate re-check period.
	PollInterval Duration `toml:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	// FetchTimeout bounds a single transfer.
	FetchTimeout Duration `toml:"fetch_timeout,omitempty" yaml:"fetch_timeout,omitempty"`
	// Watch enables filesystem notifications in the readiness gate.
	Watch *bool `toml:"watch,omitempty" yaml:"watch,omitempty"`
	// UserAgent is sent with every fetch request when set.
	UserAgent string `toml:"user_agent,omitempty" yaml:"user_agent,omitempty"`
}

// WatchEnabled reports whether the readiness gate should watch group directories.
func (s *Settings) WatchEnabled() bool {
	return s.Watch == nil || *s.Watch
}

// Config is the parsed provisioning document.
type Config struct {
	// Java configures the runtime.
	Java Java `toml:"java" yaml:"java"`
	// Game configures the server.
	Game Game `toml:"game" yaml:"game"`
	// Bin declares server jars.
	Bin map[string]Entry `toml:"bin" yaml:"bin"`
	// Plugins declares plugin jars.
	Plugins map[string]Entry `toml:"plugins" yaml:"plugins"`
	// Provisioner holds ambient settings.
	Provisioner Settings `toml:"provisioner,omitempty" yaml:"provisioner,omitempty"`
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config

	switch format := formatOf(path); format {
	case "toml":
		err = toml.Unmarshal(contents, &cfg)
	case "yaml":
		err = yaml.Unmarshal(contents, &cfg)
	default:
		return nil, fmt.Errorf("%s: %w", path, errUnsupportedFormat)
	}

	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks artifact entries and fills defaults for unset settings.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	for _, group := range artifact.Groups() {
		for name, entry := range cfg.group(group) {
			if err := validateName(name); err != nil {
				return fmt.Errorf("%s/%q: %w", group, name, err)
			}

			if err := validateEntry(entry); err != nil {
				return fmt.Errorf("%s/%s: %w", group, name, err)
			}
		}
	}

	if cfg.Game.MainJar != "" {
		if _, ok := cfg.Bin[cfg.Game.MainJar]; !ok {
			return fmt.Errorf("%s: %w", cfg.Game.MainJar, errMainJarUnknown)
		}
	}

	if cfg.Java.Binary == "" {
		cfg.Java.Binary = DefaultJavaBinary
	}

	return validateSettings(&cfg.Provisioner)
}

// validateName keeps the artifact file inside its group directory.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errInvalidName
	}

	return nil
}

func validateEntry(entry Entry) error {
	if strings.TrimSpace(entry.URL) == "" {
		return errURLRequired
	}

	if _, err := url.ParseRequestURI(strings.TrimSpace(entry.URL)); err != nil {
		return fmt.Errorf("invalid artifact url: %w", err)
	}

	if strings.TrimSpace(entry.Hash) == "" {
		return errHashRequired
	}

	if _, err := digest.ParseAlgorithm(entry.Algorithm); err != nil {
		return err
	}

	return nil
}

func validateSettings(settings *Settings) error {
	if settings.LogFile == "" {
		settings.LogFile = DefaultLogFilename
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	if settings.LockFile == "" {
		settings.LockFile = DefaultLockFilename
	}

	if settings.PaceMin == 0 && settings.PaceMax == 0 {
		settings.PaceMin = DefaultPaceMin
		settings.PaceMax = DefaultPaceMax
	}

	if settings.PaceMin < 0 || settings.PaceMax < settings.PaceMin {
		return fmt.Errorf("%d..%d minutes: %w", settings.PaceMin, settings.PaceMax, errPaceRange)
	}

	if settings.PollInterval <= 0 {
		settings.PollInterval = Duration(DefaultPollInterval)
	}

	if settings.FetchTimeout <= 0 {
		settings.FetchTimeout = Duration(DefaultFetchTimeout)
	}

	return nil
}

// Specs flattens the configured groups into artifact specs. Groups follow
// artifact.Groups order and names within a group are sorted.
func (c *Config) Specs() []artifact.Spec {
	specs := make([]artifact.Spec, 0, len(c.Bin)+len(c.Plugins))

	for _, group := range artifact.Groups() {
		entries := c.group(group)

		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			specs = append(specs, toSpec(group, name, entries[name]))
		}
	}

	return specs
}

// Lookup returns the spec for name in group.
func (c *Config) Lookup(group, name string) (artifact.Spec, bool) {
	entry, ok := c.group(group)[name]
	if !ok {
		return artifact.Spec{}, false
	}

	return toSpec(group, name, entry), true
}

func (c *Config) group(name string) map[string]Entry {
	switch name {
	case artifact.GroupBin:
		return c.Bin
	case artifact.GroupPlugins:
		return c.Plugins
	default:
		return nil
	}
}

func toSpec(group, name string, entry Entry) artifact.Spec {
	// Validate has already rejected unknown algorithms.
	algorithm, _ := digest.ParseAlgorithm(entry.Algorithm)

	return artifact.Spec{
		Name:           name,
		Group:          group,
		Source:         strings.TrimSpace(entry.URL),
		ExpectedDigest: entry.Hash,
		Algorithm:      string(algorithm),
	}
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

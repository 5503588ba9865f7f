package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
)

const sampleTOML = `
[java]
flags = ["-Xms1G", "-Xmx4G"]

[game]
main_jar = "fabric-loader"
flags = ["nogui"]

[bin.fabric-loader]
url = "https://meta.fabricmc.net/server/jar"
hash = "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855"

[plugins.lithium]
url = "https://cdn.modrinth.com/lithium.jar"
hash = "aa"

[plugins.carpet]
url = "https://cdn.modrinth.com/carpet.jar"
hash = "bb"
algorithm = "sha512"

[provisioner]
poll_interval = "2s"
pace_min = 1
pace_max = 2
watch = false
`

// TestLoad_TOML parses a complete document and checks defaults and spec ordering.
func TestLoad_TOML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"-Xms1G", "-Xmx4G"}, cfg.Java.Flags)
	require.Equal(t, DefaultJavaBinary, cfg.Java.Binary)
	require.Equal(t, "fabric-loader", cfg.Game.MainJar)
	require.Equal(t, 2*time.Second, cfg.Provisioner.PollInterval.Std())
	require.Equal(t, DefaultFetchTimeout, cfg.Provisioner.FetchTimeout.Std())
	require.Equal(t, 1, cfg.Provisioner.PaceMin)
	require.False(t, cfg.Provisioner.WatchEnabled())
	require.Equal(t, DefaultLogFilename, cfg.Provisioner.LogFile)

	specs := cfg.Specs()
	require.Len(t, specs, 3)
	require.Equal(t, artifact.GroupBin, specs[0].Group)
	require.Equal(t, "carpet", specs[1].Name)
	require.Equal(t, "sha512", specs[1].Algorithm)
	require.Equal(t, "lithium", specs[2].Name)
	require.Equal(t, "sha256", specs[2].Algorithm)

	spec, ok := cfg.Lookup(artifact.GroupPlugins, "lithium")
	require.True(t, ok)
	require.Equal(t, "https://cdn.modrinth.com/lithium.jar", spec.Source)

	_, ok = cfg.Lookup(artifact.GroupBin, "lithium")
	require.False(t, ok)
}

// TestValidate checks required fields and cross references.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	cfg := &Config{Bin: map[string]Entry{"a": {Hash: "00"}}}
	require.ErrorIs(t, Validate(cfg), errURLRequired)

	cfg = &Config{Bin: map[string]Entry{"a": {URL: "not a url", Hash: "00"}}}
	require.Error(t, Validate(cfg))

	cfg = &Config{Plugins: map[string]Entry{"b": {URL: "https://x/b.jar"}}}
	require.ErrorIs(t, Validate(cfg), errHashRequired)

	cfg = &Config{Plugins: map[string]Entry{"b": {URL: "https://x/b.jar", Hash: "00", Algorithm: "md5"}}}
	require.Error(t, Validate(cfg))

	cfg = &Config{Game: Game{MainJar: "server"}}
	require.ErrorIs(t, Validate(cfg), errMainJarUnknown)

	cfg = &Config{Provisioner: Settings{PaceMin: 10, PaceMax: 5}}
	require.ErrorIs(t, Validate(cfg), errPaceRange)

	cfg = new(Config)
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultPaceMin, cfg.Provisioner.PaceMin)
	require.Equal(t, DefaultPaceMax, cfg.Provisioner.PaceMax)
	require.Equal(t, DefaultPollInterval, cfg.Provisioner.PollInterval.Std())
	require.True(t, cfg.Provisioner.WatchEnabled())
}

// TestLoad_YAML reads the YAML rendition of the configuration.
func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	const document = `
game:
  main_jar: paper
bin:
  paper:
    url: https://papermc.io/paper.jar
    hash: abcd
provisioner:
  poll_interval: 3s
`

	path := filepath.Join(t.TempDir(), "minecraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(document), DefaultFilePermissions))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, map[string]Entry{
		"paper": {URL: "https://papermc.io/paper.jar", Hash: "abcd"},
	}, loaded.Bin)
	require.Equal(t, "paper", loaded.Game.MainJar)
	require.Equal(t, 3*time.Second, loaded.Provisioner.PollInterval.Std())
}

// TestValidate_RejectsEscapingNames refuses artifact names that would leave their group directory.
func TestValidate_RejectsEscapingNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"../evil", "..", ".", "", "nested/plugin", `..\evil`} {
		cfg := &Config{
			Plugins: map[string]Entry{
				name: {URL: "https://example.invalid/evil.jar", Hash: "abcd"},
			},
		}
		require.ErrorIs(t, Validate(cfg), errInvalidName, name)
	}

	const document = `
[bin."../evil"]
url = "https://example.invalid/evil.jar"
hash = "abcd"
`

	path := filepath.Join(t.TempDir(), "minecraft.toml")
	require.NoError(t, os.WriteFile(path, []byte(document), DefaultFilePermissions))

	_, err := Load(path)
	require.ErrorIs(t, err, errInvalidName)
}

// TestLoad_UnsupportedFormat rejects unknown extensions.
func TestLoad_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "minecraft.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), DefaultFilePermissions))

	_, err := Load(path)
	require.ErrorIs(t, err, errUnsupportedFormat)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v := viper.New()
	used, err := InitConfig(v, "")
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, 1000, v.GetInt("crawler.max_concurrent"))
	assert.Equal(t, 15*time.Second, v.GetDuration("http.connect_timeout"))
	assert.True(t, v.GetBool("http.insecure_skip_verify"))
	assert.InDelta(t, 0.5, v.GetFloat64("pacing.offset"), 1e-9)
}

func TestInitConfigReadsExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  max_concurrent: 8\noutput:\n  verbose: true\n"), 0o600))

	v := viper.New()
	used, err := InitConfig(v, path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, 8, v.GetInt("crawler.max_concurrent"))
	assert.True(t, v.GetBool("output.verbose"))
}

func TestInitConfigMissingExplicitFile(t *testing.T) {
	v := viper.New()
	_, err := InitConfig(v, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestInitConfigEnvironmentOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LINKCHECK_CRAWLER_MAX_CONCURRENT", "3")
	t.Setenv("LINKCHECK_LOGGING_LEVEL", "debug")

	v := viper.New()
	_, err := InitConfig(v, "")
	require.NoError(t, err)
	assert.Equal(t, 3, v.GetInt("crawler.max_concurrent"))
	assert.Equal(t, "debug", v.GetString("logging.level"))
}

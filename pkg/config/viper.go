// Package config prepares the Viper instance linkcheck reads its settings
// from: defaults, LINKCHECK_* environment variables and an optional file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. LINKCHECK_CRAWLER_MAX_CONCURRENT.
const EnvPrefix = "LINKCHECK"

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("crawler.exclude_pattern", "")
	v.SetDefault("crawler.max_concurrent", 1000)
	v.SetDefault("crawler.queue_depth", 512)
	v.SetDefault("crawler.min_body_bytes", 200)
	v.SetDefault("crawler.extractor", "regex")

	v.SetDefault("http.headers", []string{})
	v.SetDefault("http.connect_timeout", 15*time.Second)
	v.SetDefault("http.request_timeout", 60*time.Second)
	v.SetDefault("http.insecure_skip_verify", true)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.max_rps", 0.0)
	v.SetDefault("http.burst", 1)

	v.SetDefault("pacing.initial_latency", 1.0)
	v.SetDefault("pacing.offset", 0.5)
	v.SetDefault("pacing.floor", 1.0)

	v.SetDefault("output.verbose", false)
	v.SetDefault("output.no_color", false)

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "warn")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("store.dsn", "")
	v.SetDefault("store.migrate", true)
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.max_conn_lifetime", 30*time.Minute)

	v.SetDefault("progress.buffer_size", 2048)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
}

// InitConfig applies defaults and environment binding, then reads cfgFile or
// the first linkcheck.{yaml,json,toml} found in the search paths. A missing
// file is only an error when cfgFile names it explicitly. It returns the
// path of the file that was read, if any.
func InitConfig(v *viper.Viper, cfgFile string) (string, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("linkcheck")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.linkcheck")
		v.AddConfigPath("/etc/linkcheck/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

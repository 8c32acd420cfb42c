package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrNoConfig is returned when no configuration file path was supplied.
var ErrNoConfig = errors.New("no configuration file given")

// EnvPrefix prefixes every environment override, e.g.
// SAAS_LOG_COLLECTOR_CONNECTION_ACCESS_TOKEN.
const EnvPrefix = "SAAS_LOG_COLLECTOR"

// Config is the complete collector configuration. It is built once at startup
// and handed by value to every component.
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection" yaml:"connection"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Process    ProcessConfig    `mapstructure:"process" yaml:"process"`
	Archive    ArchiveConfig    `mapstructure:"archive" yaml:"archive"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Catalog    CatalogConfig    `mapstructure:"catalog" yaml:"catalog"`
	State      StateConfig      `mapstructure:"state" yaml:"state"`
}

// ConnectionConfig describes how to reach the JFrog platform.
type ConnectionConfig struct {
	JPDURL       string        `mapstructure:"jpd_url" yaml:"jpd_url"`
	EndPointBase string        `mapstructure:"end_point_base" yaml:"end_point_base"`
	Username     string        `mapstructure:"username" yaml:"username"`
	AccessToken  string        `mapstructure:"access_token" yaml:"access_token"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries      int           `mapstructure:"retries" yaml:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// LogConfig covers both the remote log layout and the collector's own logging.
type LogConfig struct {
	LogRepo          string   `mapstructure:"log_repo" yaml:"log_repo"`
	AuditRepo        string   `mapstructure:"audit_repo" yaml:"audit_repo"`
	LogShipConfig    string   `mapstructure:"log_ship_config" yaml:"log_ship_config"`
	SolutionsEnabled []string `mapstructure:"solutions_enabled" yaml:"solutions_enabled"`
	LogTypesEnabled  []string `mapstructure:"log_types_enabled" yaml:"log_types_enabled"`
	URIDatePattern   string   `mapstructure:"uri_date_pattern" yaml:"uri_date_pattern"`
	TargetLogPath    string   `mapstructure:"target_log_path" yaml:"target_log_path"`
	RetentionDays    int      `mapstructure:"log_file_retention_days" yaml:"log_file_retention_days"`
	DebugMode        bool     `mapstructure:"debug_mode" yaml:"debug_mode"`
	PrintWithUTC     bool     `mapstructure:"print_with_utc" yaml:"print_with_utc"`
	Format           string   `mapstructure:"format" yaml:"format"`
	File             string   `mapstructure:"file" yaml:"file"`
}

// ProcessConfig controls scheduling and parallelism.
type ProcessConfig struct {
	ParallelProcess    int  `mapstructure:"parallel_process" yaml:"parallel_process"`
	ParallelDownloads  int  `mapstructure:"parallel_downloads" yaml:"parallel_downloads"`
	HistoricalLogDays  int  `mapstructure:"historical_log_days" yaml:"historical_log_days"`
	MinutesBetweenRuns int  `mapstructure:"minutes_between_runs" yaml:"minutes_between_runs"`
	WriteLogsByType    bool `mapstructure:"write_logs_by_type" yaml:"write_logs_by_type"`
}

// ArchiveConfig enables mirroring raw .gz objects into a blob bucket.
// URL is a gocloud.dev bucket URL (s3://, gs://, file://, mem://).
type ArchiveConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Address   string `mapstructure:"address" yaml:"address"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

type CatalogConfig struct {
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

type StateConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// Interval returns the time between scheduled runs.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Process.MinutesBetweenRuns) * time.Minute
}

// Default returns a configuration with every optional value populated.
func Default() Config {
	return Config{
		Connection: ConnectionConfig{
			JPDURL:       "https://example.jfrog.io",
			EndPointBase: "artifactory",
			Timeout:      60 * time.Second,
			Retries:      5,
			RetryBackoff: 500 * time.Millisecond,
		},
		Log: LogConfig{
			LogRepo:          "jfrog-logs",
			AuditRepo:        "jfrog-logs-audit",
			LogShipConfig:    "api/logshipping/config",
			SolutionsEnabled: []string{"artifactory"},
			LogTypesEnabled:  []string{"request", "access", "traffic"},
			URIDatePattern:   "%Y-%m-%d",
			TargetLogPath:    "/var/log/jfrog-saas",
			RetentionDays:    7,
			Format:           "text",
		},
		Process: ProcessConfig{
			ParallelProcess:    2,
			ParallelDownloads:  4,
			HistoricalLogDays:  1,
			MinutesBetweenRuns: 60,
		},
		Archive: ArchiveConfig{
			Prefix: "raw/",
		},
		Metrics: MetricsConfig{
			Address:   ":9090",
			Namespace: "saas_log_collector",
		},
		State: StateConfig{
			Enabled: true,
			Dir:     "./state",
		},
	}
}

// Load reads the YAML file at path on top of Default and applies environment
// overrides. List keys accept either YAML sequences or comma-separated strings.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, ErrNoConfig
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("stat config %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}

	cfg.Log.SolutionsEnabled = splitList(cfg.Log.SolutionsEnabled)
	cfg.Log.LogTypesEnabled = splitList(cfg.Log.LogTypesEnabled)
	cfg.Connection.JPDURL = strings.TrimRight(cfg.Connection.JPDURL, "/")
	cfg.Connection.EndPointBase = strings.Trim(cfg.Connection.EndPointBase, "/")

	return cfg, cfg.Validate()
}

// Validate reports the first problem that would make the collector unusable.
func (c Config) Validate() error {
	u, err := url.Parse(c.Connection.JPDURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("connection.jpd_url must be an absolute URL, got %q", c.Connection.JPDURL)
	}
	if c.Connection.AccessToken == "" {
		return errors.New("connection.access_token is required")
	}
	if c.Log.LogRepo == "" || c.Log.AuditRepo == "" {
		return errors.New("log.log_repo and log.audit_repo are required")
	}
	if len(c.Log.SolutionsEnabled) == 0 {
		return errors.New("log.solutions_enabled must name at least one solution")
	}
	for _, s := range c.Log.SolutionsEnabled {
		if strings.ContainsAny(s, `*?/\"`) {
			return fmt.Errorf("log.solutions_enabled: invalid solution name %q", s)
		}
	}
	if len(c.Log.LogTypesEnabled) == 0 {
		return errors.New("log.log_types_enabled must name at least one log type")
	}
	if c.Log.TargetLogPath == "" {
		return errors.New("log.target_log_path is required")
	}
	if c.Log.RetentionDays < 0 {
		return fmt.Errorf("log.log_file_retention_days must not be negative, got %d", c.Log.RetentionDays)
	}
	if c.Process.ParallelProcess < 1 || c.Process.ParallelDownloads < 1 {
		return errors.New("process.parallel_process and process.parallel_downloads must be at least 1")
	}
	if c.Process.MinutesBetweenRuns < 1 {
		return fmt.Errorf("process.minutes_between_runs must be at least 1, got %d", c.Process.MinutesBetweenRuns)
	}
	if c.Process.HistoricalLogDays < 0 {
		return fmt.Errorf("process.historical_log_days must not be negative, got %d", c.Process.HistoricalLogDays)
	}
	return nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// bindEnvs registers every key of cfg so environment variables are consulted
// during Unmarshal even when the file omits the key.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

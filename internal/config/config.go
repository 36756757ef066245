// Package config loads the bridge's layered configuration: built-in
// defaults, then an optional YAML file, then environment variables, using
// spf13/viper the way Edholm-qbit-service's qbit.go reaches for viper.GetString
// throughout instead of hand-rolled flag parsing.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AmuleConfig configures the ED2K/Kademlia engine session (C5/C1).
type AmuleConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
}

// RTorrentConfig configures the BitTorrent engine session (C5/C2).
type RTorrentConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Concurrency int
}

// AuthConfig configures the qBittorrent-compatible login surface (C8).
type AuthConfig struct {
	Enabled  bool
	Password string // compared against on /auth/login; also doubles as the Torznab API key
}

// HistoryConfig selects the C11 persistence backend.
type HistoryConfig struct {
	Backend string // "json" (default) or "mysql"
	DataDir string
	MySQLDSN string
}

// ResolverConfig configures C4.
type ResolverConfig struct {
	MaxCacheSize int
	TTL          time.Duration
	FailedTTL    time.Duration
	LookupTimeout time.Duration
	RedisAddr    string // optional shared cache backing; empty disables it
}

// NotifyConfig configures the outbound event hand-off.
type NotifyConfig struct {
	AppriseBinary  string
	AppriseTargets []string
	ScriptPath     string
	ScriptTimeout  time.Duration
}

// ProwlarrConfig configures the optional BT search passthrough (C9).
type ProwlarrConfig struct {
	BaseURL string
	APIKey  string
}

// Config is the fully resolved bridge configuration.
type Config struct {
	ListenAddr      string
	DataDir         string
	SavePath        string
	TempPath        string
	CategorySyncInterval time.Duration
	SnapshotInterval     time.Duration
	Amule    AmuleConfig
	RTorrent RTorrentConfig
	Auth     AuthConfig
	History  HistoryConfig
	Resolver ResolverConfig
	Notify   NotifyConfig
	Prowlarr ProwlarrConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("save_path", "./downloads")
	v.SetDefault("temp_path", "./downloads/incomplete")
	v.SetDefault("category_sync_interval", 5*time.Minute)
	v.SetDefault("snapshot_interval", 2*time.Second)

	v.SetDefault("amule.enabled", false)
	v.SetDefault("amule.host", "127.0.0.1")
	v.SetDefault("amule.port", 4712)

	v.SetDefault("rtorrent.enabled", false)
	v.SetDefault("rtorrent.host", "127.0.0.1")
	v.SetDefault("rtorrent.port", 5000)
	v.SetDefault("rtorrent.concurrency", 16)

	v.SetDefault("auth.enabled", true)

	v.SetDefault("history.backend", "json")
	v.SetDefault("history.data_dir", "./data/history")

	v.SetDefault("resolver.max_cache_size", 4096)
	v.SetDefault("resolver.ttl", 6*time.Hour)
	v.SetDefault("resolver.failed_ttl", 5*time.Minute)
	v.SetDefault("resolver.lookup_timeout", 3*time.Second)

	v.SetDefault("notify.apprise_binary", "apprise")
	v.SetDefault("notify.script_timeout", 30*time.Second)
}

// Load reads configuration from (in increasing precedence): built-in
// defaults, the YAML file at path (if non-empty and present), and
// DLBRIDGE_-prefixed environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("dlbridge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	cfg := &Config{
		ListenAddr:           v.GetString("listen_addr"),
		DataDir:              v.GetString("data_dir"),
		SavePath:             v.GetString("save_path"),
		TempPath:             v.GetString("temp_path"),
		CategorySyncInterval: v.GetDuration("category_sync_interval"),
		SnapshotInterval:     v.GetDuration("snapshot_interval"),
		Amule: AmuleConfig{
			Enabled:  v.GetBool("amule.enabled"),
			Host:     v.GetString("amule.host"),
			Port:     v.GetInt("amule.port"),
			Password: v.GetString("amule.password"),
		},
		RTorrent: RTorrentConfig{
			Enabled:     v.GetBool("rtorrent.enabled"),
			Host:        v.GetString("rtorrent.host"),
			Port:        v.GetInt("rtorrent.port"),
			Concurrency: v.GetInt("rtorrent.concurrency"),
		},
		Auth: AuthConfig{
			Enabled:  v.GetBool("auth.enabled"),
			Password: v.GetString("auth.password"),
		},
		History: HistoryConfig{
			Backend:  v.GetString("history.backend"),
			DataDir:  v.GetString("history.data_dir"),
			MySQLDSN: v.GetString("history.mysql_dsn"),
		},
		Resolver: ResolverConfig{
			MaxCacheSize:  v.GetInt("resolver.max_cache_size"),
			TTL:           v.GetDuration("resolver.ttl"),
			FailedTTL:     v.GetDuration("resolver.failed_ttl"),
			LookupTimeout: v.GetDuration("resolver.lookup_timeout"),
			RedisAddr:     v.GetString("resolver.redis_addr"),
		},
		Notify: NotifyConfig{
			AppriseBinary:  v.GetString("notify.apprise_binary"),
			AppriseTargets: v.GetStringSlice("notify.apprise_targets"),
			ScriptPath:     v.GetString("notify.script_path"),
			ScriptTimeout:  v.GetDuration("notify.script_timeout"),
		},
		Prowlarr: ProwlarrConfig{
			BaseURL: v.GetString("prowlarr.base_url"),
			APIKey:  v.GetString("prowlarr.api_key"),
		},
	}
	return cfg, nil
}

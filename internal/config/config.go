package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the immutable application configuration snapshot. It is loaded
// once at startup and threaded into every component at construction.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Library    LibraryConfig    `mapstructure:"library"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Metadata   MetadataConfig   `mapstructure:"metadata"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Navidrome  NavidromeConfig  `mapstructure:"navidrome"`
	Jellyfin   JellyfinConfig   `mapstructure:"jellyfin"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

type LibraryConfig struct {
	MusicDir         string `mapstructure:"music_dir"`
	SinglesSubdir    string `mapstructure:"singles_subdir"`
	PlaylistsSubdir  string `mapstructure:"playlists_subdir"`
	AlbumsSubdir     string `mapstructure:"albums_subdir"`
	OrganizeByArtist bool   `mapstructure:"organize_by_artist"`
	FileMode         uint32 `mapstructure:"file_mode"` // chmod after placement, for NAS shares
}

type SourcesConfig struct {
	YTDLP      YTDLPConfig      `mapstructure:"ytdlp"`
	Monochrome MonochromeConfig `mapstructure:"monochrome"`
	Slskd      SlskdConfig      `mapstructure:"slskd"`
}

type YTDLPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Binary          string        `mapstructure:"binary"`
	CookiesFile     string        `mapstructure:"cookies_file"`
	PlayerClient    string        `mapstructure:"player_client"`
	SearchTimeout   time.Duration `mapstructure:"search_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	SearchFetchMult int           `mapstructure:"search_fetch_mult"` // fetch N times limit for scoring
}

type MonochromeConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	CoverBase  string        `mapstructure:"cover_base"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

type SlskdConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BaseURL         string        `mapstructure:"base_url"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DownloadsPath   string        `mapstructure:"downloads_path"`
	RequireFreeSlot bool          `mapstructure:"require_free_slot"`
	SearchTimeout   time.Duration `mapstructure:"search_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	APITimeout      time.Duration `mapstructure:"api_timeout"`
	MaxResults      int           `mapstructure:"max_results"`
	MinQualityScore int           `mapstructure:"min_quality_score"`
	MaxRequeues     int           `mapstructure:"max_requeues"`
}

type AggregatorConfig struct {
	PerSourceTimeout  time.Duration `mapstructure:"per_source_timeout"`
	DurationTolerance int           `mapstructure:"duration_tolerance"` // seconds, for dedup
	DefaultLimit      int           `mapstructure:"default_limit"`
}

type MetadataConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	AcoustIDAPIKey      string        `mapstructure:"acoustid_api_key"`
	AcoustIDMinScore    float64       `mapstructure:"acoustid_min_score"`
	MusicBrainzMinScore int           `mapstructure:"musicbrainz_min_score"`
	LyricsEnabled       bool          `mapstructure:"lyrics_enabled"`
	FpcalcTimeout       time.Duration `mapstructure:"fpcalc_timeout"`
	LookupTimeout       time.Duration `mapstructure:"lookup_timeout"`
}

type SchedulerConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	BrowserCommand  string        `mapstructure:"browser_command"`
	BrowserTimeout  time.Duration `mapstructure:"browser_timeout"`
	EmbedTrackLimit int           `mapstructure:"embed_track_limit"` // above this the embed endpoint truncates
}

type NavidromeConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	APIVersion  string        `mapstructure:"api_version"`
	ScanTimeout time.Duration `mapstructure:"scan_timeout"`
}

type JellyfinConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	NotifyOn           string        `mapstructure:"notify_on"` // comma list: singles,playlists,bulk,errors
	TelegramWebhookURL string        `mapstructure:"telegram_webhook_url"`
	WebhookURL         string        `mapstructure:"webhook_url"`
	SMTPHost           string        `mapstructure:"smtp_host"`
	SMTPPort           int           `mapstructure:"smtp_port"`
	SMTPUser           string        `mapstructure:"smtp_user"`
	SMTPPass           string        `mapstructure:"smtp_pass"`
	SMTPFrom           string        `mapstructure:"smtp_from"`
	SMTPTo             string        `mapstructure:"smtp_to"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	WorkDir          string        `mapstructure:"work_dir"`
	ConvertToFLAC    bool          `mapstructure:"convert_to_flac"`
	AudioFormat      string        `mapstructure:"audio_format"` // flac / opus
	MinAudioBitrate  int           `mapstructure:"min_audio_bitrate"`
	ConvertTimeout   time.Duration `mapstructure:"convert_timeout"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts"`
	StaleJobTimeout  time.Duration `mapstructure:"stale_job_timeout"`
	StaleJobInterval time.Duration `mapstructure:"stale_job_interval"`
	BulkSearchDelay  time.Duration `mapstructure:"bulk_search_delay"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite / postgres
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL        string `mapstructure:"url"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
}

type SecurityConfig struct {
	APIKeys []APIKey `mapstructure:"api_keys"`
}

type APIKey struct {
	Key  string `mapstructure:"key"`
	Name string `mapstructure:"name"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`  // debug / info / warn / error
	Format   string `mapstructure:"format"` // json / console
	Output   string `mapstructure:"output"` // stdout / file
	FilePath string `mapstructure:"file_path"`
}

// Load reads the configuration file and environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()

	// Environment overrides
	v.BindEnv("server.port", "PORT")
	v.BindEnv("library.music_dir", "MUSIC_DIR")
	v.BindEnv("library.organize_by_artist", "ORGANIZE_BY_ARTIST")
	v.BindEnv("sources.ytdlp.cookies_file", "YTDLP_COOKIES_FILE")
	v.BindEnv("sources.ytdlp.player_client", "YTDLP_PLAYER_CLIENT")
	v.BindEnv("sources.monochrome.base_url", "MONOCHROME_API_URL")
	v.BindEnv("sources.slskd.base_url", "SLSKD_URL")
	v.BindEnv("sources.slskd.username", "SLSKD_USER")
	v.BindEnv("sources.slskd.password", "SLSKD_PASS")
	v.BindEnv("sources.slskd.downloads_path", "SLSKD_DOWNLOADS_PATH")
	v.BindEnv("metadata.acoustid_api_key", "ACOUSTID_API_KEY")
	v.BindEnv("navidrome.base_url", "NAVIDROME_BASE_URL")
	v.BindEnv("navidrome.username", "NAVIDROME_USER")
	v.BindEnv("navidrome.password", "NAVIDROME_PASSWORD")
	v.BindEnv("jellyfin.base_url", "JELLYFIN_URL")
	v.BindEnv("jellyfin.api_key", "JELLYFIN_API_KEY")
	v.BindEnv("notify.telegram_webhook_url", "TELEGRAM_WEBHOOK_URL")
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("worker.max_concurrent", "MAX_CONCURRENT_JOBS")
	v.BindEnv("worker.min_audio_bitrate", "MIN_AUDIO_BITRATE")
	v.BindEnv("logging.level", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Accept bare second values (e.g. DOWNLOAD_TIMEOUT=600)
	normalizeDurationValues(v, []string{
		"sources.ytdlp.search_timeout",
		"sources.ytdlp.download_timeout",
		"sources.monochrome.timeout",
		"sources.slskd.search_timeout",
		"sources.slskd.download_timeout",
		"sources.slskd.api_timeout",
		"aggregator.per_source_timeout",
		"metadata.fpcalc_timeout",
		"metadata.lookup_timeout",
		"scheduler.tick_interval",
		"scheduler.fetch_timeout",
		"scheduler.browser_timeout",
		"navidrome.scan_timeout",
		"jellyfin.timeout",
		"notify.timeout",
		"worker.convert_timeout",
		"worker.stale_job_timeout",
		"worker.stale_job_interval",
		"worker.bulk_search_delay",
		"database.conn_max_lifetime",
	})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&cfg)

	// REDIS_URL may be host:port or redis://host:port/db
	if err := normalizeRedisAddress(&cfg.Redis); err != nil {
		return nil, fmt.Errorf("failed to parse redis config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Library.MusicDir == "" {
		cfg.Library.MusicDir = "/music"
	}
	if cfg.Library.SinglesSubdir == "" {
		cfg.Library.SinglesSubdir = "Singles"
	}
	if cfg.Library.PlaylistsSubdir == "" {
		cfg.Library.PlaylistsSubdir = "Playlists"
	}
	if cfg.Library.AlbumsSubdir == "" {
		cfg.Library.AlbumsSubdir = "Albums"
	}
	if cfg.Library.FileMode == 0 {
		cfg.Library.FileMode = 0o666
	}
	if cfg.Sources.YTDLP.Binary == "" {
		cfg.Sources.YTDLP.Binary = "yt-dlp"
	}
	if cfg.Sources.YTDLP.SearchTimeout == 0 {
		cfg.Sources.YTDLP.SearchTimeout = 30 * time.Second
	}
	if cfg.Sources.YTDLP.DownloadTimeout == 0 {
		cfg.Sources.YTDLP.DownloadTimeout = 300 * time.Second
	}
	if cfg.Sources.YTDLP.SearchFetchMult == 0 {
		cfg.Sources.YTDLP.SearchFetchMult = 3
	}
	if cfg.Sources.Monochrome.BaseURL == "" {
		cfg.Sources.Monochrome.BaseURL = "https://api.monochrome.tf"
	}
	if cfg.Sources.Monochrome.CoverBase == "" {
		cfg.Sources.Monochrome.CoverBase = "https://resources.tidal.com/images"
	}
	if cfg.Sources.Monochrome.Timeout == 0 {
		cfg.Sources.Monochrome.Timeout = 15 * time.Second
	}
	if cfg.Sources.Slskd.SearchTimeout == 0 {
		cfg.Sources.Slskd.SearchTimeout = 12 * time.Second
	}
	if cfg.Sources.Slskd.DownloadTimeout == 0 {
		cfg.Sources.Slskd.DownloadTimeout = 600 * time.Second
	}
	if cfg.Sources.Slskd.APITimeout == 0 {
		cfg.Sources.Slskd.APITimeout = 30 * time.Second
	}
	if cfg.Sources.Slskd.MaxResults == 0 {
		cfg.Sources.Slskd.MaxResults = 20
	}
	if cfg.Sources.Slskd.MinQualityScore == 0 {
		cfg.Sources.Slskd.MinQualityScore = 50
	}
	if cfg.Sources.Slskd.MaxRequeues == 0 {
		cfg.Sources.Slskd.MaxRequeues = 3
	}
	if cfg.Aggregator.PerSourceTimeout == 0 {
		cfg.Aggregator.PerSourceTimeout = 30 * time.Second
	}
	if cfg.Aggregator.DurationTolerance == 0 {
		cfg.Aggregator.DurationTolerance = 3
	}
	if cfg.Aggregator.DefaultLimit == 0 {
		cfg.Aggregator.DefaultLimit = 15
	}
	if cfg.Metadata.AcoustIDMinScore == 0 {
		cfg.Metadata.AcoustIDMinScore = 0.8
	}
	if cfg.Metadata.MusicBrainzMinScore == 0 {
		cfg.Metadata.MusicBrainzMinScore = 85
	}
	if cfg.Metadata.FpcalcTimeout == 0 {
		cfg.Metadata.FpcalcTimeout = 30 * time.Second
	}
	if cfg.Metadata.LookupTimeout == 0 {
		cfg.Metadata.LookupTimeout = 10 * time.Second
	}
	if cfg.Scheduler.TickInterval == 0 {
		cfg.Scheduler.TickInterval = time.Hour
	}
	if cfg.Scheduler.FetchTimeout == 0 {
		cfg.Scheduler.FetchTimeout = 30 * time.Second
	}
	if cfg.Scheduler.BrowserTimeout == 0 {
		cfg.Scheduler.BrowserTimeout = 180 * time.Second
	}
	if cfg.Scheduler.EmbedTrackLimit == 0 {
		cfg.Scheduler.EmbedTrackLimit = 95
	}
	if cfg.Navidrome.APIVersion == "" {
		cfg.Navidrome.APIVersion = "1.16.1"
	}
	if cfg.Navidrome.ScanTimeout == 0 {
		cfg.Navidrome.ScanTimeout = 60 * time.Second
	}
	if cfg.Jellyfin.Timeout == 0 {
		cfg.Jellyfin.Timeout = 10 * time.Second
	}
	if cfg.Notify.NotifyOn == "" {
		cfg.Notify.NotifyOn = "playlists,bulk,errors"
	}
	if cfg.Notify.SMTPPort == 0 {
		cfg.Notify.SMTPPort = 587
	}
	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = 10 * time.Second
	}
	if cfg.Worker.MaxConcurrent == 0 {
		cfg.Worker.MaxConcurrent = 3
	}
	if cfg.Worker.WorkDir == "" {
		cfg.Worker.WorkDir = "/tmp/musicgrabber"
	}
	if cfg.Worker.AudioFormat == "" {
		cfg.Worker.AudioFormat = "flac"
	}
	if cfg.Worker.ConvertTimeout == 0 {
		cfg.Worker.ConvertTimeout = 120 * time.Second
	}
	if cfg.Worker.RetryMaxAttempts == 0 {
		cfg.Worker.RetryMaxAttempts = 3
	}
	if cfg.Worker.StaleJobTimeout == 0 {
		cfg.Worker.StaleJobTimeout = 15 * time.Minute
	}
	if cfg.Worker.StaleJobInterval == 0 {
		cfg.Worker.StaleJobInterval = 2 * time.Minute
	}
	if cfg.Worker.BulkSearchDelay == 0 {
		cfg.Worker.BulkSearchDelay = time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func normalizeDurationValues(v *viper.Viper, keys []string) {
	for _, key := range keys {
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err == nil {
			continue
		}
		if isDigits(raw) {
			v.Set(key, raw+"s")
		}
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func normalizeRedisAddress(redisCfg *RedisConfig) error {
	raw := strings.TrimSpace(redisCfg.URL)
	if raw == "" {
		return nil
	}

	// asynq wants host:port; pass through if already in that form
	if !strings.Contains(raw, "://") {
		redisCfg.URL = raw
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL %q: %w", raw, err)
	}

	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return fmt.Errorf("unsupported REDIS_URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid REDIS_URL %q: missing host", raw)
	}

	redisCfg.URL = u.Host

	if redisCfg.DB != 0 {
		return nil
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return nil
	}

	db, err := strconv.Atoi(path)
	if err != nil || db < 0 {
		return fmt.Errorf("invalid REDIS_URL database index %q", path)
	}
	redisCfg.DB = db

	return nil
}

package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sells-group/contact-enricher/internal/cooldown"
	"github.com/sells-group/contact-enricher/internal/db"
	"github.com/sells-group/contact-enricher/internal/oracle"
	"github.com/sells-group/contact-enricher/internal/resilience"
	"github.com/sells-group/contact-enricher/internal/scheduler"
	"github.com/sells-group/contact-enricher/internal/sheet"
	"github.com/sells-group/contact-enricher/internal/store"
	"github.com/sells-group/contact-enricher/internal/sweep"
	"github.com/sells-group/contact-enricher/pkg/telegram"
)

// Config holds the full application configuration.
type Config struct {
	Oracle      OracleConfig      `yaml:"oracle" mapstructure:"oracle"`
	Cooldown    CooldownConfig    `yaml:"cooldown" mapstructure:"cooldown"`
	Credentials CredentialsConfig `yaml:"credentials" mapstructure:"credentials"`
	Sheet       SheetConfig       `yaml:"sheet" mapstructure:"sheet"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// OracleConfig configures the bot connection and reply handling.
type OracleConfig struct {
	BotUsername      string `yaml:"bot_username" mapstructure:"bot_username"`
	SystemVersion    string `yaml:"system_version" mapstructure:"system_version"`
	SessionsDir      string `yaml:"sessions_dir" mapstructure:"sessions_dir"`
	IDCommand        string `yaml:"id_command" mapstructure:"id_command"`
	History          int    `yaml:"history" mapstructure:"history"`
	NotFoundMarker   string `yaml:"not_found_marker" mapstructure:"not_found_marker"`
	DocumentExt      string `yaml:"document_ext" mapstructure:"document_ext"`
	FloodPaddingSecs int    `yaml:"flood_padding_secs" mapstructure:"flood_padding_secs"`
	MaxFloodRetries  int    `yaml:"max_flood_retries" mapstructure:"max_flood_retries"`
	DailyBudget      int    `yaml:"daily_budget" mapstructure:"daily_budget"`
	SkipLimitedToday bool   `yaml:"skip_limited_today" mapstructure:"skip_limited_today"`
	DownloadDir      string `yaml:"download_dir" mapstructure:"download_dir"`
}

// CooldownConfig holds the randomized pause ranges.
type CooldownConfig struct {
	ActionMinSecs  int `yaml:"action_min_secs" mapstructure:"action_min_secs"`
	ActionMaxSecs  int `yaml:"action_max_secs" mapstructure:"action_max_secs"`
	RequestMinSecs int `yaml:"request_min_secs" mapstructure:"request_min_secs"`
	RequestMaxSecs int `yaml:"request_max_secs" mapstructure:"request_max_secs"`
	SessionMinSecs int `yaml:"session_min_secs" mapstructure:"session_min_secs"`
	SessionMaxSecs int `yaml:"session_max_secs" mapstructure:"session_max_secs"`
	CycleMinHours  int `yaml:"cycle_min_hours" mapstructure:"cycle_min_hours"`
	CycleMaxHours  int `yaml:"cycle_max_hours" mapstructure:"cycle_max_hours"`
}

// CredentialsConfig locates the credentials file.
type CredentialsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SheetConfig configures the tabular store.
type SheetConfig struct {
	Driver          string        `yaml:"driver" mapstructure:"driver"`
	SpreadsheetID   string        `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	Worksheet       string        `yaml:"worksheet" mapstructure:"worksheet"`
	CredentialsFile string        `yaml:"credentials_file" mapstructure:"credentials_file"`
	Path            string        `yaml:"path" mapstructure:"path"`
	WriteRPS        float64       `yaml:"write_rps" mapstructure:"write_rps"`
	FirstRow        int           `yaml:"first_row" mapstructure:"first_row"`
	EmailHeader     string        `yaml:"email_header" mapstructure:"email_header"`
	Columns         ColumnsConfig `yaml:"columns" mapstructure:"columns"`
	Retry           RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// ColumnsConfig holds 1-based column indexes.
type ColumnsConfig struct {
	FIO        int `yaml:"fio" mapstructure:"fio"`
	NationalID int `yaml:"national_id" mapstructure:"national_id"`
	Phone      int `yaml:"phone" mapstructure:"phone"`
	Email      int `yaml:"email" mapstructure:"email"`
}

// RetryConfig configures retries of transient store calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// StoreConfig configures the usage ledger backend.
type StoreConfig struct {
	Driver      string         `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string         `yaml:"database_url" mapstructure:"database_url"`
	Pool        *db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level" mapstructure:"level"`
	Format    string `yaml:"format" mapstructure:"format"`
	File      string `yaml:"file" mapstructure:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// Load reads configuration from config.yaml, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("oracle.bot_username", "@UssboxBot")
	v.SetDefault("oracle.system_version", "4.16.30-vxCUSTOM")
	v.SetDefault("oracle.sessions_dir", "sessions")
	v.SetDefault("oracle.id_command", "/raw")
	v.SetDefault("oracle.history", 2)
	v.SetDefault("oracle.not_found_marker", "ничего не найдено")
	v.SetDefault("oracle.document_ext", ".html")
	v.SetDefault("oracle.flood_padding_secs", 10)
	v.SetDefault("oracle.max_flood_retries", 0)
	v.SetDefault("oracle.daily_budget", 0)
	v.SetDefault("oracle.skip_limited_today", true)
	v.SetDefault("oracle.download_dir", "")
	v.SetDefault("cooldown.action_min_secs", 15)
	v.SetDefault("cooldown.action_max_secs", 30)
	v.SetDefault("cooldown.request_min_secs", 30)
	v.SetDefault("cooldown.request_max_secs", 60)
	v.SetDefault("cooldown.session_min_secs", 45)
	v.SetDefault("cooldown.session_max_secs", 100)
	v.SetDefault("cooldown.cycle_min_hours", 14)
	v.SetDefault("cooldown.cycle_max_hours", 26)
	v.SetDefault("credentials.path", "sessions.json")
	v.SetDefault("sheet.driver", "google")
	v.SetDefault("sheet.spreadsheet_id", "")
	v.SetDefault("sheet.worksheet", "Лист2")
	v.SetDefault("sheet.credentials_file", "service-account.json")
	v.SetDefault("sheet.path", "")
	v.SetDefault("sheet.write_rps", 1.0)
	v.SetDefault("sheet.first_row", 2)
	v.SetDefault("sheet.email_header", "Email")
	v.SetDefault("sheet.columns.fio", 3)
	v.SetDefault("sheet.columns.national_id", 4)
	v.SetDefault("sheet.columns.phone", 6)
	v.SetDefault("sheet.columns.email", 7)
	v.SetDefault("sheet.retry.max_attempts", 3)
	v.SetDefault("sheet.retry.initial_backoff_ms", 500)
	v.SetDefault("sheet.retry.max_backoff_ms", 30000)
	v.SetDefault("sheet.retry.multiplier", 2.0)
	v.SetDefault("sheet.retry.jitter_fraction", 0.25)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enricher.db")
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "logs/enricher.log")
	v.SetDefault("log.max_size_mb", 5)
	v.SetDefault("metrics.textfile", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "run", "once" or
// "session".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Credentials.Path == "" {
		errs = append(errs, "credentials.path is required")
	}

	switch mode {
	case "run", "once":
		if c.Oracle.BotUsername == "" {
			errs = append(errs, "oracle.bot_username is required")
		}
		if c.Oracle.IDCommand == "" {
			errs = append(errs, "oracle.id_command is required")
		}
		switch c.Sheet.Driver {
		case "", "google":
			if c.Sheet.SpreadsheetID == "" {
				errs = append(errs, "sheet.spreadsheet_id is required for the google driver")
			}
		case "xlsx":
			if c.Sheet.Path == "" {
				errs = append(errs, "sheet.path is required for the xlsx driver")
			}
		default:
			errs = append(errs, "sheet.driver must be google or xlsx")
		}
		cols := c.Sheet.Columns
		if cols.FIO < 1 || cols.NationalID < 1 || cols.Phone < 1 || cols.Email < 1 {
			errs = append(errs, "sheet.columns must be 1-based indexes")
		}
		if c.Sheet.FirstRow < 1 {
			errs = append(errs, "sheet.first_row must be at least 1")
		}
		if c.Oracle.DailyBudget < 0 {
			errs = append(errs, "oracle.daily_budget must not be negative")
		}
		if c.Oracle.DailyBudget > 0 && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required when oracle.daily_budget is set")
		}
		errs = append(errs, c.Cooldown.validate()...)
	case "session":
		if c.Oracle.SessionsDir == "" {
			errs = append(errs, "oracle.sessions_dir is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c CooldownConfig) validate() []string {
	var errs []string
	check := func(name string, lo, hi int) {
		if lo < 0 || hi < lo {
			errs = append(errs, "cooldown."+name+" range is invalid")
		}
	}
	check("action", c.ActionMinSecs, c.ActionMaxSecs)
	check("request", c.RequestMinSecs, c.RequestMaxSecs)
	check("session", c.SessionMinSecs, c.SessionMaxSecs)
	check("cycle", c.CycleMinHours, c.CycleMaxHours)
	return errs
}

// OracleClient returns the query client settings.
func (c *Config) OracleClient() oracle.Config {
	return oracle.Config{
		History:         c.Oracle.History,
		NotFoundMarker:  c.Oracle.NotFoundMarker,
		DocumentExt:     c.Oracle.DocumentExt,
		FloodPadding:    time.Duration(c.Oracle.FloodPaddingSecs) * time.Second,
		MaxFloodRetries: c.Oracle.MaxFloodRetries,
		Cooldown:        cooldown.Seconds(c.Cooldown.RequestMinSecs, c.Cooldown.RequestMaxSecs),
		DownloadDir:     c.Oracle.DownloadDir,
	}
}

// Telegram returns the MTProto connector settings.
func (c *Config) Telegram() telegram.Config {
	return telegram.Config{
		BotUsername:   c.Oracle.BotUsername,
		SystemVersion: c.Oracle.SystemVersion,
		SessionsDir:   c.Oracle.SessionsDir,
	}
}

// Sweep returns the row engine settings.
func (c *Config) Sweep() sweep.Config {
	return sweep.Config{
		Columns: sweep.Columns{
			FullName:   c.Sheet.Columns.FIO,
			NationalID: c.Sheet.Columns.NationalID,
			Phone:      c.Sheet.Columns.Phone,
			Email:      c.Sheet.Columns.Email,
		},
		FirstRow:        c.Sheet.FirstRow,
		EmailHeader:     c.Sheet.EmailHeader,
		RequestCooldown: cooldown.Seconds(c.Cooldown.RequestMinSecs, c.Cooldown.RequestMaxSecs),
		DailyBudget:     c.Oracle.DailyBudget,
	}
}

// Scheduler returns the rotation pauses.
func (c *Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		Settle:  cooldown.Seconds(c.Cooldown.ActionMinSecs, c.Cooldown.ActionMaxSecs),
		Session: cooldown.Seconds(c.Cooldown.SessionMinSecs, c.Cooldown.SessionMaxSecs),
		Cycle:   cooldown.Hours(c.Cooldown.CycleMinHours, c.Cooldown.CycleMaxHours),
	}
}

// SheetStore returns the tabular store settings.
func (c *Config) SheetStore() sheet.Config {
	r := c.Sheet.Retry
	return sheet.Config{
		Driver:          c.Sheet.Driver,
		SpreadsheetID:   c.Sheet.SpreadsheetID,
		Worksheet:       c.Sheet.Worksheet,
		CredentialsFile: c.Sheet.CredentialsFile,
		Path:            c.Sheet.Path,
		WriteRPS:        c.Sheet.WriteRPS,
		Retry:           resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction),
	}
}

// Ledger returns the usage ledger settings.
func (c *Config) Ledger() store.Config {
	return store.Config{
		Driver:      c.Store.Driver,
		DatabaseURL: c.Store.DatabaseURL,
		Pool:        c.Store.Pool,
	}
}

// InitLogger initializes the global zap logger. When cfg.File is set every
// entry is also written to a size-rotated file as
// "2006-01-02 15:04:05 | INFO | caller | message".
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}

	if cfg.File != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(fileEncoderConfig()),
			zapcore.AddSync(rotatingFile(cfg)),
			zapCfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	return nil
}

func fileEncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	enc.ConsoleSeparator = " | "
	enc.StacktraceKey = ""
	return enc
}

func rotatingFile(cfg LogConfig) *lumberjack.Logger {
	size := cfg.MaxSizeMB
	if size <= 0 {
		size = 5
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    size,
		MaxBackups: 3,
		Compress:   true,
	}
}

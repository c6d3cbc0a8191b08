package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/lohithk/tallysync/internal/db"
)

// Config is the full runtime configuration: source endpoint, destination
// database, dashboard server, exports, and notification channels.
type Config struct {
	Tally    TallyConfig
	Database db.Config
	Server   ServerConfig
	Export   ExportConfig
	Notify   NotifyConfig
}

// TallyConfig points at the accounting source's XML gateway.
type TallyConfig struct {
	URL     string
	Timeout time.Duration
}

// ServerConfig holds the dashboard HTTP server settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// ExportConfig holds workbook snapshot settings.
type ExportConfig struct {
	Dir       string
	SecretKey string
}

// NotifyConfig holds the failure notification channels. A channel with an
// empty primary field (SMTPHost, BotToken) is disabled.
type NotifyConfig struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string
	MailTo   []string

	TelegramBotToken string
	TelegramChatID   string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Tally: TallyConfig{
			URL:     "http://localhost:9000",
			Timeout: 10 * time.Second,
		},
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Export: ExportConfig{
			Dir: "exports",
		},
		Notify: NotifyConfig{
			SMTPPort: 587,
		},
	}
}

// Load reads config.yaml from configPath, with TALLYSYNC_-prefixed
// environment variables overriding file values.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv() // allow environment overrides
	v.SetEnvPrefix("TALLYSYNC")

	v.BindEnv("tally.url")
	v.BindEnv("tally.timeout_seconds")
	v.BindEnv("database.hosts")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("export.dir")
	v.BindEnv("export.secret_key")
	v.BindEnv("notify.smtp_host")
	v.BindEnv("notify.smtp_port")
	v.BindEnv("notify.smtp_user")
	v.BindEnv("notify.smtp_pass")
	v.BindEnv("notify.telegram_bot_token")
	v.BindEnv("notify.telegram_chat_id")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("tally.url") {
		cfg.Tally.URL = v.GetString("tally.url")
	}
	if v.IsSet("tally.timeout_seconds") {
		cfg.Tally.Timeout = time.Duration(v.GetInt("tally.timeout_seconds")) * time.Second
	}

	if v.IsSet("database.hosts") {
		cfg.Database.Hosts = v.GetStringSlice("database.hosts")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("export.dir") {
		cfg.Export.Dir = v.GetString("export.dir")
	}
	if v.IsSet("export.secret_key") {
		cfg.Export.SecretKey = v.GetString("export.secret_key")
	}

	if v.IsSet("notify.smtp_host") {
		cfg.Notify.SMTPHost = v.GetString("notify.smtp_host")
	}
	if v.IsSet("notify.smtp_port") {
		cfg.Notify.SMTPPort = v.GetInt("notify.smtp_port")
	}
	if v.IsSet("notify.smtp_user") {
		cfg.Notify.SMTPUser = v.GetString("notify.smtp_user")
	}
	if v.IsSet("notify.smtp_pass") {
		cfg.Notify.SMTPPass = v.GetString("notify.smtp_pass")
	}
	if v.IsSet("notify.mail_from") {
		cfg.Notify.MailFrom = v.GetString("notify.mail_from")
	}
	if v.IsSet("notify.mail_to") {
		cfg.Notify.MailTo = v.GetStringSlice("notify.mail_to")
	}
	if v.IsSet("notify.telegram_bot_token") {
		cfg.Notify.TelegramBotToken = v.GetString("notify.telegram_bot_token")
	}
	if v.IsSet("notify.telegram_chat_id") {
		cfg.Notify.TelegramChatID = v.GetString("notify.telegram_chat_id")
	}

	if cfg.Tally.Timeout <= 0 {
		return Config{}, fmt.Errorf("tally timeout must be positive")
	}
	if len(cfg.Database.Hosts) == 0 {
		return Config{}, fmt.Errorf("at least one database host is required")
	}

	return cfg, nil
}

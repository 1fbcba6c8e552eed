package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	envPrefix = "ULEARN"

	// campus defaults
	DefaultLat     = "22.927"
	DefaultLon     = "113.881"
	usernamePrefix = "dgut"
)

type (
	AccountConfig struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LocationConfig struct {
		Lat string `json:"lat" validate:"required,latitude"`
		Lon string `json:"lon" validate:"required,longitude"`
	}

	EmailConfig struct {
		FromAddr       string `json:"from_addr" validate:"omitempty,email"`
		AuthCode       string `json:"auth_code"`
		ToAddr         string `json:"to_addr" validate:"omitempty,email"`
		SMTPHost       string `json:"smtp_host"`
		SMTPPort       int    `json:"smtp_port" validate:"omitempty,min=1,max=65535"`
		SendgridAPIKey string `json:"sendgrid_api_key"`
	}

	HTTPConfig struct {
		Timeout   time.Duration
		UserAgent string
	}

	ScheduleConfig struct {
		DailyAt       string `json:"daily_at" validate:"required,clock"`
		DailyGrace    time.Duration
		Interval      time.Duration `json:"interval" validate:"gt=0"`
		IntervalGrace time.Duration
	}

	FilesConfig struct {
		Config  string
		Session string
		Log     string
	}

	DatabaseConfig struct {
		Engine     string `json:"engine" validate:"oneof=sqlite3 postgres memory"`
		Name       string `json:"name" validate:"required"`
		Host       string
		Port       int
		User       string
		Password   string
		DisableTLS bool
	}

	ServerConfig struct {
		Address         string
		ShutdownTimeout time.Duration
		APIKeyHash      string // bcrypt; empty leaves the control API open
	}

	Config struct {
		AppName      string
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		RollbarToken string

		Account  AccountConfig  `json:"account"`
		Location LocationConfig `json:"location"`
		Email    EmailConfig    `json:"email"`
		Schedule ScheduleConfig `json:"schedule"`
		Database DatabaseConfig `json:"database"`
		HTTP     HTTPConfig
		Files    FilesConfig
		Server   ServerConfig
	}
)

// Address returns the "host:port" of the database server.
func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NormalizeUsername adds the school prefix to a bare student number.
func NormalizeUsername(username string) string {
	username = CleanString(username)
	if username == "" {
		return username
	}
	for _, r := range username {
		if r < '0' || r > '9' {
			return username
		}
	}
	return usernamePrefix + username
}

// MailEnabled reports whether enough mail settings exist to deliver notifications.
func (c EmailConfig) MailEnabled() bool {
	return c.FromAddr != "" && c.ToAddr != ""
}

func setDefaults(conf *viper.Viper) {
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", false)
	conf.SetDefault("appName", "uLearn Assistant")
	conf.SetDefault("build", "develop")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("account.username", "")
	conf.SetDefault("account.password", "")
	conf.SetDefault("location.lat", DefaultLat)
	conf.SetDefault("location.lon", DefaultLon)

	conf.SetDefault("email.from_addr", "")
	conf.SetDefault("email.auth_code", "")
	conf.SetDefault("email.to_addr", "")
	conf.SetDefault("email.smtp_host", "smtp.qq.com")
	conf.SetDefault("email.smtp_port", 465)
	conf.SetDefault("email.sendgrid_api_key", "")

	conf.SetDefault("http.timeout", 10*time.Second)
	conf.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	conf.SetDefault("schedule.daily_at", "08:00")
	conf.SetDefault("schedule.daily_grace", 5*time.Minute)
	conf.SetDefault("schedule.interval", 2*time.Minute)
	conf.SetDefault("schedule.interval_grace", time.Minute)

	conf.SetDefault("files.session", "cookie.txt")
	conf.SetDefault("files.log", "app.log")

	conf.SetDefault("database.engine", "sqlite3")
	conf.SetDefault("database.name", "ulearn.db")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.user", "")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.disable_tls", true)

	conf.SetDefault("server.address", "")
	conf.SetDefault("server.shutdown_timeout", 5*time.Second)
	conf.SetDefault("server.api_key_hash", "")
}

// NewConfig loads the configuration: defaults, then `.env.<env>`, then the INI file at `path`,
// then ULEARN_* environment variables. A missing file at any stage is not an error.
func NewConfig(path string) (*Config, error) {
	conf := viper.New()
	setDefaults(conf)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "config.godotenv(%s)", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "config.os.Stat(%s)", dotEnvPath)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			conf.SetConfigFile(path)
			conf.SetConfigType("ini")
			if err := conf.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "reading config file %s", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "config.os.Stat(%s)", path)
		}
	}

	conf.SetEnvPrefix(envPrefix)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	conf.AutomaticEnv()

	return &Config{
		AppName:      conf.GetString("appName"),
		Env:          env,
		Build:        conf.GetString("build"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		RollbarToken: conf.GetString("rollbarToken"),
		Account: AccountConfig{
			Username: CleanString(conf.GetString("account.username")),
			Password: conf.GetString("account.password"),
		},
		Location: LocationConfig{
			Lat: CleanString(conf.GetString("location.lat")),
			Lon: CleanString(conf.GetString("location.lon")),
		},
		Email: EmailConfig{
			FromAddr:       CleanString(conf.GetString("email.from_addr")),
			AuthCode:       conf.GetString("email.auth_code"),
			ToAddr:         CleanString(conf.GetString("email.to_addr")),
			SMTPHost:       conf.GetString("email.smtp_host"),
			SMTPPort:       conf.GetInt("email.smtp_port"),
			SendgridAPIKey: conf.GetString("email.sendgrid_api_key"),
		},
		Schedule: ScheduleConfig{
			DailyAt:       conf.GetString("schedule.daily_at"),
			DailyGrace:    conf.GetDuration("schedule.daily_grace"),
			Interval:      conf.GetDuration("schedule.interval"),
			IntervalGrace: conf.GetDuration("schedule.interval_grace"),
		},
		Database: DatabaseConfig{
			Engine:     conf.GetString("database.engine"),
			Name:       conf.GetString("database.name"),
			Host:       conf.GetString("database.host"),
			Port:       conf.GetInt("database.port"),
			User:       conf.GetString("database.user"),
			Password:   conf.GetString("database.password"),
			DisableTLS: conf.GetBool("database.disable_tls"),
		},
		HTTP: HTTPConfig{
			Timeout:   conf.GetDuration("http.timeout"),
			UserAgent: conf.GetString("http.user_agent"),
		},
		Files: FilesConfig{
			Config:  path,
			Session: conf.GetString("files.session"),
			Log:     conf.GetString("files.log"),
		},
		Server: ServerConfig{
			Address:         conf.GetString("server.address"),
			ShutdownTimeout: conf.GetDuration("server.shutdown_timeout"),
			APIKeyHash:      conf.GetString("server.api_key_hash"),
		},
	}, nil
}

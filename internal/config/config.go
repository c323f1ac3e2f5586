package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	FrontendBaseURL string `yaml:"frontend_base_url" env:"FRONTEND_BASE_URL" env-required:"true"`
	HTTPServer      `yaml:"http_server"`
	Postgres        `yaml:"postgres"`
	Redis           `yaml:"redis"`
	RabbitMQ        `yaml:"rabbitmq"`
	JWT             `yaml:"jwt"`
	Tokens          `yaml:"tokens"`
	Cleanup         `yaml:"cleanup"`
	Email           `yaml:"email"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-required:"true"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Enabled  bool   `yaml:"enabled" env-default:"true"`
	Addr     string `yaml:"addr" env-default:"redis:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env-default:"0"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL" env-required:"true"`
	QueueName string `yaml:"queue_name" env-required:"true"`
}

type JWT struct {
	Secret         string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	Issuer         string        `yaml:"issuer" env-required:"true"`
	Audience       string        `yaml:"audience" env-required:"true"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl" env-default:"1h"`
}

type Tokens struct {
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
	ResetTokenTTL   time.Duration `yaml:"reset_token_ttl" env-default:"1h"`
}

type Cleanup struct {
	Enabled   bool          `yaml:"enabled" env-default:"false"`
	Interval  time.Duration `yaml:"interval" env-default:"12h"`
	Retention time.Duration `yaml:"retention" env-default:"720h"`
}

// Email is consumed by the mail sender binary only.
type Email struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return &cfg
}

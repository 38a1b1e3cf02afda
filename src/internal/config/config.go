package config

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Configuration struct {
	Logs     LogsSettings     `mapstructure:"logs"`
	App      Application      `mapstructure:"app"`
	Server   ServerSettings   `mapstructure:"server"`
	Session  SessionConfig    `mapstructure:"session"`
	Claude   ClaudeConfig     `mapstructure:"claude"`
	Qr       QrConfig         `mapstructure:"qr"`
	Database Database         `mapstructure:"database"`
	Redis    Redis            `mapstructure:"redis"`
	Queue    QueueConfig      `mapstructure:"queue"`
	Security SecuritySettings `mapstructure:"security"`
	Cache    CacheConfig      `mapstructure:"cache"`
}

type LogsSettings struct {
	Level            string `mapstructure:"level"`
	EnableJSONOutput bool   `mapstructure:"enable-json-output"`
}

type Application struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Timeout int    `mapstructure:"timeout"`
	BaseUrl string `mapstructure:"base-url"`
}

type ServerSettings struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read-timeout"`
	WriteTimeout int    `mapstructure:"write-timeout"`
	IdleTimeout  int    `mapstructure:"idle-timeout"`
}

type SessionConfig struct {
	ExpirationMinutes      int    `mapstructure:"expiration-minutes"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup-interval-minutes"`
	MobilePath             string `mapstructure:"mobile-path"`
	MaxMessageSize         int64  `mapstructure:"max-message-size"`
	PingIntervalSeconds    int    `mapstructure:"ping-interval-seconds"`
	ReadTimeoutSeconds     int    `mapstructure:"read-timeout-seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write-timeout-seconds"`
}

type ClaudeConfig struct {
	ApiUrl    string `mapstructure:"api-url"`
	ApiKey    string `mapstructure:"api-key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max-tokens"`
	Timeout   int    `mapstructure:"timeout"`
}

type QrConfig struct {
	Size int `mapstructure:"size"`
}

type Database struct {
	Url                  string `mapstructure:"url"`
	DbName               string `mapstructure:"dbname"`
	ValidationCollection string `mapstructure:"validation-collection"`
	Timeout              int    `mapstructure:"timeout"`
}

type Redis struct {
	Url      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type QueueConfig struct {
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type RabbitMQConfig struct {
	Url          string `mapstructure:"url"`
	Exchange     string `mapstructure:"exchange"`
	ExchangeType string `mapstructure:"exchange-type"`
	RoutingKey   string `mapstructure:"routing-key"`
	Durable      bool   `mapstructure:"durable"`
	AutoDelete   bool   `mapstructure:"auto-delete"`
	Internal     bool   `mapstructure:"internal"`
	NoWait       bool   `mapstructure:"no-wait"`
	Timeout      int    `mapstructure:"timeout"`
}

type SecuritySettings struct {
	JwtKey string `mapstructure:"jwt-key"`
}

type CacheConfig struct {
	VerdictKeyPrefix         string `mapstructure:"verdict-key-prefix"`
	VerdictExpirationMinutes int    `mapstructure:"verdict-expiration-minutes"`
}

func Load() *Configuration {
	cfg := read()
	logrus.Info("Configuration loaded")

	// Override with environment variables
	mongoUri := os.Getenv("MONGODB_URL")
	if mongoUri != "" {
		cfg.Database.Url = mongoUri
	}

	dbName := os.Getenv("DB_NAME")
	if dbName != "" {
		cfg.Database.DbName = dbName
	}

	redisUrl := os.Getenv("REDIS_URL")
	if redisUrl != "" {
		cfg.Redis.Url = redisUrl
	}

	redisDB := os.Getenv("REDIS_DB")
	if redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			cfg.Redis.Db = db
		}
	}

	rabbitmqUrl := os.Getenv("RABBITMQ_URL")
	if rabbitmqUrl != "" {
		cfg.Queue.RabbitMQ.Url = rabbitmqUrl
	}

	jwtKey := os.Getenv("JWT_KEY")
	if jwtKey != "" {
		cfg.Security.JwtKey = jwtKey
	}

	claudeKey := os.Getenv("CLAUDE_API_KEY")
	if claudeKey != "" {
		cfg.Claude.ApiKey = claudeKey
	}

	baseUrl := os.Getenv("BASE_URL")
	if baseUrl != "" {
		cfg.App.BaseUrl = baseUrl
	}

	port := os.Getenv("PORT")
	if port != "" {
		cfg.Server.Port = port
	}

	return cfg
}

func read() *Configuration {
	viper.SetConfigFile("src/internal/config/cfg.yml")
	viper.AutomaticEnv()
	viper.SetConfigType("yml")

	var config Configuration

	err := viper.ReadInConfig()
	if err != nil {
		logrus.Panicf("Error reading config file, %s", err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		logrus.Panicf("Error unmarshalling config file, %s", err)
	}

	return &config
}

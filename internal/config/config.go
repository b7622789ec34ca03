// Package config предоставляет структуры и функции для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы документного хранилища.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string          `yaml:"env" env:"ENV" env-default:"local"`
	Storage         Storage         `yaml:"storage"`
	RedisConnection RedisConnection `yaml:"redis_connection"`
	RabbitMQ        RabbitMQ        `yaml:"rabbitmq"`
	Subscriber      Subscriber      `yaml:"subscriber"`
	Reconciler      Reconciler      `yaml:"reconciler"`
	OpsServer       OpsServer       `yaml:"ops_server"`
}

// Storage настройки документного хранилища
type Storage struct {
	Driver         string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"mongo"`
	MongoURI       string `yaml:"mongo_uri" env:"MONGO_URI"`
	Database       string `yaml:"database" env-default:"subscribers"`
	PostgresDSN    string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	MigrationsPath string `yaml:"migrations_path" env-default:"./migrations"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDR"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ настройки брокера событий
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	Retries    int           `yaml:"retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
	// Exchange принимает события абонентов и события удаления потоков и серверов.
	Exchange     string `yaml:"exchange" env-default:"subscribers"`
	StreamsQueue string `yaml:"streams_queue" env-default:"subscribers.stream_deleted"`
	ServersQueue string `yaml:"servers_queue" env-default:"subscribers.server_deleted"`
}

// Subscriber настройки агрегата абонента
type Subscriber struct {
	MaxDevicesCount int `yaml:"max_devices_count" env-default:"10"`
	// Hasher одно из md5, bcrypt, compat.
	Hasher string `yaml:"hasher" env-default:"compat"`
	// DanglingPolicy fail или skip.
	DanglingPolicy string `yaml:"dangling_policy" env-default:"fail"`
	// OfficialRemoval any или official_only.
	OfficialRemoval string        `yaml:"official_removal" env-default:"any"`
	CacheTTL        time.Duration `yaml:"cache_ttl" env-default:"5m"`
	LBAddress       string        `yaml:"lb_address"`
}

// Reconciler настройки фоновой сверки ссылок
type Reconciler struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"10m"`
	// RatePerSecond ограничение на число исправляемых абонентов в секунду.
	RatePerSecond float64 `yaml:"rate_per_second" env-default:"50"`
	Burst         int     `yaml:"burst" env-default:"10"`
}

// OpsServer служебный HTTP-сервер с health и метриками
type OpsServer struct {
	Address     string        `yaml:"address" env-default:":9090"`
	Timeout     time.Duration `yaml:"timeout" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Load читает конфиг из файла path и переменных окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH, при ошибке завершает процесс
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for driver %q", DriverMongo)
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for driver %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Subscriber.DanglingPolicy {
	case "fail", "skip":
	default:
		return fmt.Errorf("unknown dangling policy %q", c.Subscriber.DanglingPolicy)
	}
	switch c.Subscriber.OfficialRemoval {
	case "any", "official_only":
	default:
		return fmt.Errorf("unknown official removal mode %q", c.Subscriber.OfficialRemoval)
	}
	return nil
}

// String печатает конфиг без секретов.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  Database: %s\n"+
			"  MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"RabbitMQ:\n"+
			"  Exchange: %s\n"+
			"Subscriber:\n"+
			"  MaxDevicesCount: %d\n"+
			"  Hasher: %s\n"+
			"  DanglingPolicy: %s\n"+
			"  OfficialRemoval: %s\n"+
			"  CacheTTL: %s\n"+
			"Reconciler:\n"+
			"  SweepInterval: %s\n"+
			"OpsServer:\n"+
			"  Address: %s\n",
		c.Env,
		c.Storage.Driver,
		c.Storage.Database,
		c.Storage.MigrationsPath,
		c.RedisConnection.AddressRedis,
		c.RedisConnection.DB,
		c.RabbitMQ.Exchange,
		c.Subscriber.MaxDevicesCount,
		c.Subscriber.Hasher,
		c.Subscriber.DanglingPolicy,
		c.Subscriber.OfficialRemoval,
		c.Subscriber.CacheTTL,
		c.Reconciler.SweepInterval,
		c.OpsServer.Address,
	)
}

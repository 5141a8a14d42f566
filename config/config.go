package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/willtech3/circulation-service/pkg/kafka"
	"github.com/willtech3/circulation-service/pkg/logger"
	"github.com/willtech3/circulation-service/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"30s"`
	WriteTimeout time.Duration
}

// Circulation holds the business knobs of the circulation engine.
type Circulation struct {
	DailyFineRate float64       `envconfig:"DAILY_FINE_RATE" default:"0.50"`
	MaxFine       float64       `envconfig:"MAX_FINE" default:"25.00"`
	FineCeiling   float64       `envconfig:"FINE_CEILING" default:"10.00"`
	LoanPeriod    time.Duration `envconfig:"LOAN_PERIOD" default:"336h"`
	MaxPageSize   int           `envconfig:"MAX_PAGE_SIZE" default:"100"`
}

type Config struct {
	Server      HTTPServer `yaml:"server"`
	Database    postgres.Config
	Kafka       kafka.Config
	Circulation Circulation
	Log         logger.Log `yaml:"log"`
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return &cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}

type Option func(*Config)

func WithLogLevel(level zapcore.Level) Option {
	return func(c *Config) {
		c.Log.LogLevel = level
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = d
	}
}

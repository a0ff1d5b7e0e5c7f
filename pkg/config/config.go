// Package config loads typed configuration structs from environment
// variables. A .env file in the working directory is applied once before
// the first parse, which keeps local development close to production
// deployment where real environment variables are set.
package config

import (
	"errors"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrParse = errors.New("config: failed to parse environment variables")
)

var dotenvOnce sync.Once

// Load parses environment variables into a new T based on `env` struct
// tags. Missing required variables surface as an ErrParse-wrapped error.
//
//	type PostgresConfig struct {
//	    URL string `env:"DATABASE_URL,required"`
//	}
//
//	cfg, err := config.Load[PostgresConfig]()
func Load[T any]() (T, error) {
	dotenvOnce.Do(func() {
		// A missing .env file is fine.
		_ = godotenv.Load()
	})

	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Join(ErrParse, err)
	}
	return cfg, nil
}

// MustLoad works like Load but panics on failure. Use it for configuration
// the application cannot start without.
func MustLoad[T any]() T {
	cfg, err := Load[T]()
	if err != nil {
		panic(err)
	}
	return cfg
}

package config

import (
	"errors"
	"os"
	"strings"
)

type Config struct {
	Env          string
	Addr         string
	WSAddr       string
	LogLevel     string
	DBDSN        string
	DBPath       string
	SnapshotPath string
}

func Load() (Config, error) {
	return LoadFromEnv(os.Getenv)
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:          getenv("APP_ENV"),
		Addr:         getenv("APP_ADDR"),
		WSAddr:       getenv("APP_WS_ADDR"),
		LogLevel:     getenv("APP_LOG_LEVEL"),
		DBDSN:        getenv("APP_DB_DSN"),
		DBPath:       strings.TrimSpace(getenv("APP_DB_PATH")),
		SnapshotPath: strings.TrimSpace(getenv("APP_SNAPSHOT_PATH")),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:2424"
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	if cfg.DBDSN != "" && cfg.DBPath != "" {
		return Config{}, errors.New("APP_DB_DSN and APP_DB_PATH: set at most one")
	}
	if cfg.SnapshotPath != "" && (cfg.DBDSN != "" || cfg.DBPath != "") {
		return Config{}, errors.New("APP_SNAPSHOT_PATH: cannot be combined with a database backend")
	}
	if cfg.DBDSN == "" && cfg.DBPath == "" && cfg.SnapshotPath == "" {
		cfg.SnapshotPath = "userdb.json"
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

// Package config loads runtime settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDatabaseURL        = "RESULTLEDGER_DATABASE_URL"
	EnvCASConfig          = "RESULTLEDGER_CAS_CONFIG"
	EnvCASBackend         = "RESULTLEDGER_CAS_BACKEND"
	EnvLocalFSDir         = "RESULTLEDGER_LOCALFS_DIR"
	EnvIPFSAPI            = "RESULTLEDGER_IPFS_API"
	EnvRedisAddr          = "RESULTLEDGER_REDIS_ADDR"
	EnvFingerprintTimeout = "RESULTLEDGER_FINGERPRINT_TIMEOUT"
	EnvGradePolicy        = "RESULTLEDGER_GRADE_POLICY"
	EnvKeyDir             = "RESULTLEDGER_KEY_DIR"
)

const DefaultFingerprintTimeout = 10 * time.Second

type Config struct {
	DatabaseURL string
	// CASConfig is a casconfig JSON file. When empty a single backend is
	// opened from CASBackend and the backend-specific settings below.
	CASConfig          string
	CASBackend         string
	LocalFSDir         string
	IPFSAPI            string
	RedisAddr          string
	FingerprintTimeout time.Duration
	GradePolicy        string
	KeyDir             string
}

// Load reads the given .env files (".env" when none are named) into the
// environment without overriding variables already set, then builds a
// Config. Missing .env files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }
	c := Config{
		DatabaseURL:        get(EnvDatabaseURL),
		CASConfig:          get(EnvCASConfig),
		CASBackend:         get(EnvCASBackend),
		LocalFSDir:         get(EnvLocalFSDir),
		IPFSAPI:            get(EnvIPFSAPI),
		RedisAddr:          get(EnvRedisAddr),
		GradePolicy:        get(EnvGradePolicy),
		KeyDir:             get(EnvKeyDir),
		FingerprintTimeout: DefaultFingerprintTimeout,
	}
	if c.CASBackend == "" {
		c.CASBackend = "localfs"
	}
	if v := get(EnvFingerprintTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", EnvFingerprintTimeout, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("config: %s must be positive", EnvFingerprintTimeout)
		}
		c.FingerprintTimeout = d
	}
	return c, nil
}

// BackendConfig returns the casregistry options for CASBackend.
func (c Config) BackendConfig() map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	switch c.CASBackend {
	case "localfs":
		set("localfs-dir", c.LocalFSDir)
	case "ipfs":
		set("ipfs-api", c.IPFSAPI)
	case "redis":
		set("redis-addr", c.RedisAddr)
	}
	return out
}

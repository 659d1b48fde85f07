package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileVar = "TURF_CONFIG_FILE"

type Config interface {
	EnvConfig
	APIConfig
	StorageConfig
	SessionConfig
	CorsConfig
	TokenConfig
}

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetPort() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	API
	Storage
	Session
	Cors
	Tokens
}

// New returns a Config read from environment variables only
func New() Config {
	return newMainConfig(values{})
}

// Load returns a Config backed by the YAML file at path, or the file named by
// TURF_CONFIG_FILE when path is empty. Environment variables override the file.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(configFileVar)
	}
	if path == "" {
		return New(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config.Load] read %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("[config.Load] parse %s: %w", path, err)
	}
	return newMainConfig(file.values()), nil
}

func newMainConfig(v values) mainConfig {
	return mainConfig{
		EnvVars: EnvVars{v: v},
		API:     API{v: v},
		Storage: Storage{v: v},
		Session: Session{v: v},
		Cors:    Cors{v: v},
		Tokens:  Tokens{v: v},
	}
}

// fileConfig is the YAML layout of the config file
type fileConfig struct {
	Env      string `yaml:"env"`
	AppName  string `yaml:"app_name"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	API struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`

	Storage struct {
		Backend    string `yaml:"backend"`
		Dir        string `yaml:"dir"`
		Passphrase string `yaml:"passphrase"`
		RedisAddr  string `yaml:"redis_addr"`
		RedisDB    string `yaml:"redis_db"`
		SessionKey string `yaml:"session_key"`
	} `yaml:"storage"`

	Session struct {
		DedupeRefresh string `yaml:"dedupe_refresh"`
		ServerLogout  string `yaml:"server_logout"`
	} `yaml:"session"`

	Cors struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Tokens struct {
		Secret              string `yaml:"secret"`
		AccessTokenExpiry   string `yaml:"access_token_expiry"`
		RefreshTokenExpiry  string `yaml:"refresh_token_expiry"`
		PasswordResetExpiry string `yaml:"password_reset_expiry"`
		OtpExpiry           string `yaml:"otp_expiry"`
	} `yaml:"tokens"`
}

func (f fileConfig) values() values {
	v := values{
		envVar:                 f.Env,
		appNameVar:             f.AppName,
		portEnvVar:             f.Port,
		logLevelVar:            f.LogLevel,
		apiBaseURLVar:          f.API.BaseURL,
		requestTimeoutVar:      f.API.Timeout,
		storageBackendVar:      f.Storage.Backend,
		storageDirVar:          f.Storage.Dir,
		storagePassphraseVar:   f.Storage.Passphrase,
		redisAddrVar:           f.Storage.RedisAddr,
		redisDBVar:             f.Storage.RedisDB,
		sessionKeyVar:          f.Storage.SessionKey,
		dedupeRefreshVar:       f.Session.DedupeRefresh,
		serverLogoutVar:        f.Session.ServerLogout,
		tokenSecretVar:         f.Tokens.Secret,
		accessTokenExpiryVar:   f.Tokens.AccessTokenExpiry,
		refreshTokenExpiryVar:  f.Tokens.RefreshTokenExpiry,
		passwordResetExpiryVar: f.Tokens.PasswordResetExpiry,
		otpExpiryVar:           f.Tokens.OtpExpiry,
	}
	if len(f.Cors.AllowedOrigins) > 0 {
		v[allowedOriginsVar] = joinOrigins(f.Cors.AllowedOrigins)
	}
	for k, val := range v {
		if val == "" {
			delete(v, k)
		}
	}
	return v
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	envVar            = "ENV"
	appNameVar        = "APP_NAME"
	portEnvVar        = "PORT"
	logLevelVar       = "TURF_LOG_LEVEL"
	apiBaseURLVar     = "TURF_API_BASE_URL"
	requestTimeoutVar = "TURF_REQUEST_TIMEOUT"

	defaultRequestTimeout = 10 * time.Second
)

// values holds settings read from the config file, keyed by environment variable name
type values map[string]string

// get returns the environment variable, then the file value, then defaultValue
func (v values) get(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	if value, ok := v[envVar]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (v values) duration(envVar string, defaultValue time.Duration) time.Duration {
	raw := v.get(envVar, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warn().Str("var", envVar).Str("value", raw).Msg("Invalid duration, using default")
		return defaultValue
	}
	return d
}

func (v values) flag(envVar string, defaultValue bool) bool {
	raw := v.get(envVar, "")
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn().Str("var", envVar).Str("value", raw).Msg("Invalid boolean, using default")
		return defaultValue
	}
	return b
}

type EnvVars struct {
	v values
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetEnv() string {
	return e.v.get(envVar, "DEV")
}

func (e EnvVars) GetAppName() string {
	return e.v.get(appNameVar, "Turf Client")
}

// GetPort returns the listen address of the local route server, e.g. ":8081"
func (e EnvVars) GetPort() string {
	port := e.v.get(portEnvVar, "8081")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetLogLevel() string {
	return strings.ToLower(e.v.get(logLevelVar, "info"))
}

type API struct {
	v values
}

var _ APIConfig = API{}

func (a API) GetAPIBaseURL() string {
	return strings.TrimRight(a.v.get(apiBaseURLVar, "http://localhost:5000/api/v1"), "/")
}

func (a API) GetRequestTimeout() time.Duration {
	return a.v.duration(requestTimeoutVar, defaultRequestTimeout)
}

// GetEnv returns the environment variable or defaultValue when it is unset
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

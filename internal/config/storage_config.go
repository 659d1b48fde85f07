package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	storageBackendVar    = "TURF_STORAGE"
	storageDirVar        = "TURF_STORAGE_DIR"
	storagePassphraseVar = "TURF_STORAGE_PASSPHRASE"
	redisAddrVar         = "TURF_REDIS_ADDR"
	redisDBVar           = "TURF_REDIS_DB"
	sessionKeyVar        = "TURF_SESSION_KEY"
)

type StorageBackend string

const (
	StorageFile   StorageBackend = "file"
	StorageRedis  StorageBackend = "redis"
	StorageMemory StorageBackend = "memory"
)

type StorageConfig interface {
	GetStorageBackend() StorageBackend
	GetStorageDir() string
	GetStoragePassphrase() string
	GetRedisAddr() string
	GetRedisDB() int
	GetSessionKey() string
}

type Storage struct {
	v values
}

var _ StorageConfig = Storage{}

// GetStorageBackend falls back to file storage for unknown values
func (s Storage) GetStorageBackend() StorageBackend {
	switch backend := StorageBackend(strings.ToLower(s.v.get(storageBackendVar, string(StorageFile)))); backend {
	case StorageFile, StorageRedis, StorageMemory:
		return backend
	default:
		return StorageFile
	}
}

// GetStorageDir defaults to ~/.turf, or ./.turf when the home directory is unknown
func (s Storage) GetStorageDir() string {
	defaultDir := ".turf"
	if home, err := os.UserHomeDir(); err == nil {
		defaultDir = filepath.Join(home, ".turf")
	}
	return s.v.get(storageDirVar, defaultDir)
}

func (s Storage) GetStoragePassphrase() string {
	return s.v.get(storagePassphraseVar, "")
}

func (s Storage) GetRedisAddr() string {
	return s.v.get(redisAddrVar, "localhost:6379")
}

func (s Storage) GetRedisDB() int {
	db, err := strconv.Atoi(s.v.get(redisDBVar, "0"))
	if err != nil || db < 0 {
		return 0
	}
	return db
}

// GetSessionKey is the storage key the session is persisted under
func (s Storage) GetSessionKey() string {
	return s.v.get(sessionKeyVar, "turf.session")
}

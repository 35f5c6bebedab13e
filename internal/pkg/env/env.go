package env

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Env holds the settings read from the .env file. Process environment
// variables fill the gaps, so containerized deployments work without a file.
var Env map[string]string

func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt reads an integer setting, falling back to def on absence or parse failure.
func GetEnvInt(key string, def int) int {
	if val := GetEnv(key, ""); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return def
}

// GetEnvDuration reads a time.Duration setting ("60s", "15m").
func GetEnvDuration(key string, def time.Duration) time.Duration {
	if val := GetEnv(key, ""); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}

// GetEnvBool reads a boolean setting ("true"/"1" are truthy).
func GetEnvBool(key string, def bool) bool {
	if val := GetEnv(key, ""); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

// SetupEnvFile loads the first .env file found, walking up from the
// working directory so both the repo root and cmd/ binaries resolve it.
func SetupEnvFile() {
	for _, path := range []string{".env", "../../.env", "../../../.env"} {
		if parsed, err := godotenv.Read(path); err == nil {
			Env = parsed
			return
		}
	}
	log.Print("env: no .env file found, using process environment")
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}

package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	MongoURI       string
	RedisURI       string
	Port           string
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)
	Environment    string   // ENV: production, development, etc.

	// ImportMaxBytes is the per-tenant byte ceiling for uploaded import
	// files, enforced before the pipeline runs. Default 5 GiB.
	ImportMaxBytes int64
	// ImportChunkSize is the bulk-write chunk size of the import pipeline.
	ImportChunkSize int
	// ImportTmpDir is where uploaded import files are staged until the
	// pipeline deletes them.
	ImportTmpDir string
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))

	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return &Config{
		MongoURI:        getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017")),
		RedisURI:        getEnv("REDIS_URI", "redis://localhost:6379/0"),
		Port:            getEnv("PORT", "8080"),
		AllowedOrigins:  allowedOrigins,
		Environment:     env,
		ImportMaxBytes:  getEnvInt64("IMPORT_MAX_BYTES", 5<<30),
		ImportChunkSize: getEnvInt("IMPORT_CHUNK_SIZE", 500),
		ImportTmpDir:    getEnv("IMPORT_TMP_DIR", os.TempDir()),
	}
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

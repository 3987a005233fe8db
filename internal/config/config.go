package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	// Submission endpoint the canonical request URL is rendered against.
	BaseURL string

	// Event store. Driver is "sqlite3" (device-local file) or "pgx"
	// (shared kiosk deployments); DSN is the file path or connection URL.
	DBDriver string
	DBDSN    string

	RedisAddr    string
	QueueBackend string

	// Scan validation.
	ValidityWindowMin int

	// Connectivity gate.
	ProbeFallbackHost string
	ProbePort         int
	ProbeTimeout      time.Duration
	NetworkProfile    string

	// Submission executor.
	SubmitTimeout      time.Duration
	InsecureSkipVerify bool

	// Reconciler retry policy.
	RetryMaxAttempts int
	RetryBase        time.Duration
	RetryCap         time.Duration

	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	RateLimitPerMin int
	ExportDir       string
}

// Load returns application config populated from environment variables with
// sensible defaults. A .env file in the working directory is honored when
// present.
func Load() App {
	_ = godotenv.Load()

	return App{
		Env:                getEnv("APP_ENV", "dev"),
		HTTPPort:           getEnv("HTTP_PORT", "8081"),
		BaseURL:            getEnv("BASE_URL", "https://asistencia.example.edu/asistencia/registrar"),
		DBDriver:           getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:              getEnv("DB_DSN", "asistencias.db"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		QueueBackend:       getEnv("QUEUE_BACKEND", "memory"),
		ValidityWindowMin:  intEnv("VALIDITY_WINDOW_MIN", 10),
		ProbeFallbackHost:  getEnv("PROBE_FALLBACK_HOST", "asistencia.local"),
		ProbePort:          intEnv("PROBE_PORT", 5000),
		ProbeTimeout:       durationEnv("PROBE_TIMEOUT", 3*time.Second),
		NetworkProfile:     getEnv("NETWORK_PROFILE", "unknown"),
		SubmitTimeout:      durationEnv("SUBMIT_TIMEOUT", 5*time.Second),
		InsecureSkipVerify: boolEnv("SUBMIT_INSECURE_SKIP_VERIFY", false),
		RetryMaxAttempts:   intEnv("RETRY_MAX_ATTEMPTS", 10),
		RetryBase:          durationEnv("RETRY_BASE", 30*time.Second),
		RetryCap:           durationEnv("RETRY_CAP", time.Hour),
		JWTIssuer:          getEnv("JWT_ISSUER", "attendsync-agent"),
		JWTSigningKey:      getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:          durationEnv("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:         durationEnv("REFRESH_TTL", 24*time.Hour),
		RateLimitPerMin:    intEnv("RATE_LIMIT_PER_MIN", 120),
		ExportDir:          getEnv("EXPORT_DIR", "."),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

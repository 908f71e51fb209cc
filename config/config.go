package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// NoCheckInPolicy decides what happens to a match whose check-in window
// expires before both sides confirmed readiness.
type NoCheckInPolicy string

const (
	// PolicyStaffFlag leaves the match pending and surfaces it as overdue
	// for staff (the default: nobody loses to a clock without a human).
	PolicyStaffFlag NoCheckInPolicy = "staff_flag"
	// PolicyAutoForfeit awards the match against the missing side (or
	// voids it when neither side showed).
	PolicyAutoForfeit NoCheckInPolicy = "auto_forfeit"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// Engine defaults, overridable per tournament at creation time.
	DefaultRoundDurationMinutes int
	DefaultCheckInWindowMinutes int
	NoCheckInPolicy             NoCheckInPolicy

	// Optional integrations; empty values disable the integration.
	KafkaBrokers string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	roundDuration, err := intEnv("ROUND_DURATION_MINUTES", 50)
	if err != nil {
		return nil, err
	}
	checkInWindow, err := intEnv("CHECKIN_WINDOW_MINUTES", 5)
	if err != nil {
		return nil, err
	}

	policy := NoCheckInPolicy(os.Getenv("NO_CHECKIN_POLICY"))
	switch policy {
	case "":
		policy = PolicyStaffFlag
	case PolicyStaffFlag, PolicyAutoForfeit:
	default:
		return nil, fmt.Errorf("NO_CHECKIN_POLICY must be %q or %q, got %q",
			PolicyStaffFlag, PolicyAutoForfeit, policy)
	}

	cfg := &Config{
		DatabaseURL:                 dbURL,
		JWTSecretKey:                jwtKey,
		ServerPort:                  port,
		DefaultRoundDurationMinutes: roundDuration,
		DefaultCheckInWindowMinutes: checkInWindow,
		NoCheckInPolicy:             policy,
		KafkaBrokers:                os.Getenv("KAFKA_BROKERS"),
		R2AccountID:                 os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:               os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:           os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:                os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:             os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int
	LogLevel     string

	// OperatorAPIKey открывает операторские маршруты (пополнение кошельков).
	// Пустое значение - маршруты не подключаются.
	OperatorAPIKey string

	// Параметры матчей
	DefaultStake      int64
	DefaultCurrency   string
	PayoutFraction    decimal.Decimal
	PlatformAccountID string
	CodeLength        int
	AbandonAfter      time.Duration
	PlayingTimeout    time.Duration
	SweepInterval     time.Duration
	SweepConcurrency  int

	// Cloudflare R2 для архива расчетов; пустой bucket отключает архив.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	CORSAllowedOrigins []string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load() // отсутствие .env не ошибка

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

	cfg := &Config{
		DatabaseURL:       dbURL,
		JWTSecretKey:      jwtKey,
		ServerPort:        port,
		LogLevel:          stringEnv("LOG_LEVEL", "info"),
		OperatorAPIKey:    os.Getenv("OPERATOR_API_KEY"),
		DefaultCurrency:   strings.ToUpper(stringEnv("DEFAULT_CURRENCY", "COIN")),
		PlatformAccountID: stringEnv("PLATFORM_ACCOUNT_ID", "platform"),
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	stake, err := intEnv("DEFAULT_STAKE", 100)
	if err != nil {
		return nil, err
	}
	if stake <= 0 {
		return nil, fmt.Errorf("DEFAULT_STAKE must be positive, got %d", stake)
	}
	cfg.DefaultStake = int64(stake)

	cfg.PayoutFraction, err = decimal.NewFromString(stringEnv("PAYOUT_FRACTION", "0.8"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYOUT_FRACTION environment variable: %w", err)
	}
	if cfg.PayoutFraction.LessThanOrEqual(decimal.Zero) || cfg.PayoutFraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("PAYOUT_FRACTION must be in (0, 1], got %s", cfg.PayoutFraction)
	}

	if cfg.CodeLength, err = intEnv("CODE_LENGTH", 8); err != nil {
		return nil, err
	}
	if cfg.SweepConcurrency, err = intEnv("SWEEP_CONCURRENCY", 4); err != nil {
		return nil, err
	}

	durations := []struct {
		name string
		dst  *time.Duration
		def  time.Duration
	}{
		{"ABANDON_AFTER", &cfg.AbandonAfter, 5 * time.Minute},
		{"PLAYING_TIMEOUT", &cfg.PlayingTimeout, 10 * time.Minute},
		{"SWEEP_INTERVAL", &cfg.SweepInterval, 30 * time.Second},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.name, d.def); err != nil {
			return nil, err
		}
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	} else {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	return cfg, nil
}

func stringEnv(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return n, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return d, nil
}

package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string // sqlite file path or postgres:// URL
	Bookmakers  []string

	QueueCapacity    int
	BatchSize        int
	BatchTimeout     time.Duration
	BetQueueCapacity int
	WriteRetries     int

	TickInterval    time.Duration
	StatsInterval   time.Duration
	ShutdownTimeout time.Duration

	AdminAddr     string
	InputLockPath string
	LogLevel      string
	LogFormat     string
}

func Load() *Config {
	_ = godotenv.Load() // .env file is optional

	bookmakersStr := getEnv("BOOKMAKERS", "balkanbet,maxbet,meridian,soccerbet")
	bookmakers := strings.Split(bookmakersStr, ",")
	for i, name := range bookmakers {
		bookmakers[i] = strings.TrimSpace(name)
	}

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "aviator.db"),
		Bookmakers:  bookmakers,

		QueueCapacity:    getEnvAsInt("QUEUE_CAPACITY", 10000),
		BatchSize:        getEnvAsInt("BATCH_SIZE", 50),
		BatchTimeout:     time.Duration(getEnvAsInt("BATCH_TIMEOUT_MS", 1000)) * time.Millisecond,
		BetQueueCapacity: getEnvAsInt("BET_QUEUE_CAPACITY", 100),
		WriteRetries:     getEnvAsInt("WRITE_RETRIES", 1),

		TickInterval:    time.Duration(getEnvAsInt("TICK_INTERVAL_MS", 200)) * time.Millisecond,
		StatsInterval:   time.Duration(getEnvAsInt("STATS_INTERVAL_SECONDS", 60)) * time.Second,
		ShutdownTimeout: time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,

		AdminAddr:     getEnv("ADMIN_ADDR", ":9090"),
		InputLockPath: getEnv("INPUT_LOCK_PATH", "/tmp/aviator-tracker-input.lock"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}
}

// WarningDepth is the queue depth at which the worker starts warning (50% of
// capacity). CriticalDepth is the hard-pressure threshold (80%).
func (c *Config) WarningDepth() int  { return c.QueueCapacity * 50 / 100 }
func (c *Config) CriticalDepth() int { return c.QueueCapacity * 80 / 100 }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s: %s, using default %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

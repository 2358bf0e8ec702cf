package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"portaria-backend/models"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Load reads .env (if present) so the rest of the process can use os.Getenv.
// A missing .env is fine in deployments where the environment is set directly.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
}

func InitDB() *gorm.DB {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Building{},
		&models.Apartment{},
		&models.DeviceEndpoint{},
		&models.EntryEvent{},
		&models.CallSession{},
	)
	if err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	return db
}

func InitRedis() *redis.Client {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	return redis.NewClient(opts)
}

// CallRingInterval and CallTimeout control the intercom ring loop. Defaults
// match the mobile client: re-ring every 2s, give up after 45s.
func CallRingInterval() time.Duration {
	return durationEnv("CALL_RING_INTERVAL_MS", 2000)
}

func CallTimeout() time.Duration {
	return durationEnv("CALL_TIMEOUT_MS", 45000)
}

func durationEnv(key string, defMillis int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
		log.Printf("ignoring invalid %s=%q", key, v)
	}
	return time.Duration(defMillis) * time.Millisecond
}

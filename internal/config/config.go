package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	VerifyToken   string
	WhatsAppToken string
	PhoneNumberID string
	AppBaseURL    string

	MPAccessToken string

	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	SessionTTLMinutes int
	OrderTTLDays      int

	ThrottleSecondsMin int
	ThrottleSecondsMax int

	BoletoMinAmount float64
	DefaultPrice    string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		VerifyToken:   getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken: getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID: getEnv("PHONE_NUMBER_ID", ""),
		AppBaseURL:    getEnv("APP_BASE_URL", ""),

		MPAccessToken: getEnv("MP_ACCESS_TOKEN", ""),

		DBPath:     getEnv("DB_PATH", "./commerce.db"),
		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "commerce"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		SessionTTLMinutes: getEnvInt("SESSION_TTL_MINUTES", 30),
		OrderTTLDays:      getEnvInt("ORDER_TTL_DAYS", 7),

		ThrottleSecondsMin: getEnvInt("THROTTLE_SECONDS_MIN", 60),
		ThrottleSecondsMax: getEnvInt("THROTTLE_SECONDS_MAX", 150),

		BoletoMinAmount: 3.0,
		DefaultPrice:    getEnv("DEFAULT_PRICE", "R$ 19,90"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

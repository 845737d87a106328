package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresMaxConns int

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	GeoCacheTTL   time.Duration

	// Kafka
	KafkaBrokers  []string
	SyncTopic     string
	KafkaDisabled bool

	// Geocoding (Nominatim fair-use: one request per ~1.1s)
	NominatimBaseURL     string
	NominatimUserAgent   string
	NominatimMinInterval time.Duration
	NominatimReverseZoom int

	// Search snippets (SerpAPI)
	SerpAPIBaseURL string
	SerpAPIKey     string
	SerpMaxScan    int
	PageScrape     bool

	// Apify facebook-events-scraper
	ApifyBaseURL     string
	ApifyToken       string
	ApifyActorID     string
	ApifyTimeoutSecs int

	// Facebook Graph API
	GraphVersion   string
	GraphBaseURL   string
	GraphPageID    string
	GraphPageToken string
	GraphAppID     string
	GraphAppSecret string
	GraphMaxPages  int

	// Normalization defaults
	DefaultCountry     string
	DefaultCountryCode string
	EventsTimezone     string
	VenueKeywordsPath  string

	// Scheduled syncs
	FacebookCronSpec  string
	FacebookQuery     string
	FacebookSyncLimit int
	ICSCronSpec       string
	ICSURL            string
	ICSSyncLimit      int
	ICSFutureOnly     bool

	FetchTimeout time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 16*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "mapevents"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "mapevents123"),
		PostgresDB:       getEnv("POSTGRES_DB", "mapevents"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresMaxConns: getIntEnv("POSTGRES_MAX_CONNS", 10),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		GeoCacheTTL:   getDuration("GEO_CACHE_TTL", 24*time.Hour),

		KafkaBrokers:  getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		SyncTopic:     getEnv("SYNC_TOPIC", "mapevents-sync"),
		KafkaDisabled: getBoolEnv("KAFKA_DISABLED", false),

		NominatimBaseURL:     getEnv("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent:   getEnv("NOMINATIM_USER_AGENT", "MapEvents/1.0 (cron; contact: ops@axiopea.com)"),
		NominatimMinInterval: getDuration("NOMINATIM_MIN_INTERVAL", 1100*time.Millisecond),
		NominatimReverseZoom: getIntEnv("NOMINATIM_REVERSE_ZOOM", 10),

		SerpAPIBaseURL: getEnv("SERPAPI_BASE_URL", "https://serpapi.com"),
		SerpAPIKey:     getEnv("SERPAPI_KEY", ""),
		SerpMaxScan:    getIntEnv("SERP_MAX_SCAN", 100),
		PageScrape:     getBoolEnv("SERP_PAGE_SCRAPE", false),

		ApifyBaseURL:     getEnv("APIFY_BASE_URL", "https://api.apify.com"),
		ApifyToken:       getEnv("APIFY_TOKEN", ""),
		ApifyActorID:     getEnv("APIFY_FACEBOOK_ACTOR_ID", "apify~facebook-events-scraper"),
		ApifyTimeoutSecs: getIntEnv("APIFY_TIMEOUT_SECS", 240),

		GraphVersion:   getEnv("FACEBOOK_GRAPH_VERSION", "v24.0"),
		GraphBaseURL:   getEnv("FACEBOOK_GRAPH_BASE_URL", "https://graph.facebook.com"),
		GraphPageID:    getEnv("FACEBOOK_PAGE_ID", ""),
		GraphPageToken: getEnv("FACEBOOK_PAGE_ACCESS_TOKEN", ""),
		GraphAppID:     getEnv("FACEBOOK_APP_ID", ""),
		GraphAppSecret: getEnv("FACEBOOK_APP_SECRET", ""),
		GraphMaxPages:  getIntEnv("FACEBOOK_GRAPH_MAX_PAGES", 10),

		DefaultCountry:     getEnv("DEFAULT_COUNTRY", "Poland"),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "PL"),
		EventsTimezone:     getEnv("EVENTS_TIMEZONE", "Europe/Warsaw"),
		VenueKeywordsPath:  getEnv("VENUE_KEYWORDS_PATH", ""),

		FacebookCronSpec:  getEnv("FACEBOOK_CRON", ""),
		FacebookQuery:     getEnv("FB_SEARCH_QUERY", ""),
		FacebookSyncLimit: getIntEnv("FB_SYNC_LIMIT", 50),
		ICSCronSpec:       getEnv("ICS_CRON", ""),
		ICSURL:            getEnv("ICS_URL", ""),
		ICSSyncLimit:      getIntEnv("ICS_JOB_FETCH_LIMIT", 200),
		ICSFutureOnly:     getBoolEnv("ICS_FUTURE_ONLY", false),

		FetchTimeout: getDuration("FETCH_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.EqualFold(value, "true") || value == "1"
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ListenAddr   string
	SecretKey    string // Signs the session cookie; random per process when empty
	CookieSecure bool

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleDiscoveryURL string
	OAuthRedirectURI   string
	// Store a locally signed placeholder token when backend federation fails.
	AllowPlaceholderToken bool

	// Generation backend
	BackendURL           string
	HealthTimeout        time.Duration
	AuthTimeout          time.Duration
	RequestTimeout       time.Duration // playlist, like, delete
	GenerateTimeout      time.Duration
	MediaGenerateTimeout time.Duration

	// Local fallback persistence
	MusicDataFile    string // JSON array of music records
	UploadDir        string // Uploaded images, videos and audio
	MediaDir         string // Generated media assets (local backend)
	MediaPlaceholder string // Stand-in asset served when a record's file is missing
	StaticDir        string
	MediaBackend     string // local or minio

	// MinIO
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Redis cache for backend health and the public playlist; disabled when RedisAddr is empty
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	HealthCacheTTL   time.Duration
	PlaylistCacheTTL time.Duration

	// Logging
	LogLevel  string
	LogFile   string
	LogFormat string // json or console
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("5s") or plain seconds ("5").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without reading .env.
//
// Durations accept Go syntax ("1500ms") or whole seconds ("45"). Booleans use
// strconv.ParseBool. A value that does not parse falls back to its default
// rather than failing startup. MEDIA_DIR defaults to a "music" directory
// under STATIC_DIR.
func FromEnv() *Config {
	staticBase := getEnv("STATIC_DIR", "static")

	return &Config{
		// server and session
		ListenAddr:   getEnv("LISTEN_ADDR", ":5000"),
		SecretKey:    os.Getenv("SECRET_KEY"),
		CookieSecure: getEnvBool("COOKIE_SECURE", false),

		// identity
		GoogleClientID:        os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:    os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleDiscoveryURL:    getEnv("GOOGLE_DISCOVERY_URL", "https://accounts.google.com/.well-known/openid-configuration"),
		OAuthRedirectURI:      getEnv("OAUTH_REDIRECT_URI", "http://localhost:5000/auth/google/callback"),
		AllowPlaceholderToken: getEnvBool("AUTH_ALLOW_PLACEHOLDER_TOKEN", false),

		// generation backend
		BackendURL:           strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
		HealthTimeout:        getEnvDuration("BACKEND_HEALTH_TIMEOUT", 5*time.Second),
		AuthTimeout:          getEnvDuration("BACKEND_AUTH_TIMEOUT", 10*time.Second),
		RequestTimeout:       getEnvDuration("BACKEND_REQUEST_TIMEOUT", 10*time.Second),
		GenerateTimeout:      getEnvDuration("BACKEND_GENERATE_TIMEOUT", 30*time.Second),
		MediaGenerateTimeout: getEnvDuration("BACKEND_MEDIA_GENERATE_TIMEOUT", 60*time.Second),

		// local storage
		MusicDataFile:    getEnv("MUSIC_DATA_FILE", "music_data.json"),
		UploadDir:        getEnv("UPLOAD_DIR", "uploads"),
		MediaDir:         getEnv("MEDIA_DIR", filepath.Join(staticBase, "music")),
		MediaPlaceholder: getEnv("MEDIA_PLACEHOLDER", "demo.mp3"),
		StaticDir:        staticBase,
		MediaBackend:     strings.ToLower(getEnv("MEDIA_BACKEND", "local")),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "moodfm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		// cache
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		HealthCacheTTL:   getEnvDuration("HEALTH_CACHE_TTL", 10*time.Second),
		PlaylistCacheTTL: getEnvDuration("PLAYLIST_CACHE_TTL", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   os.Getenv("LOG_FILE"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// OAuthConfigured reports whether Google client credentials are present.
func (c *Config) OAuthConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the process-wide configuration: wiring for MySQL, Redis,
// MinIO and the control server, plus optional engine option overrides.
// Playback behaviour itself is configured through model.Options; the
// Engine* fields here are nil/zero unless the matching env var is set,
// so defaults still materialize in exactly one place (ApplyDefaults).
type Config struct {
	ServerAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO 归档存储（可选，Endpoint 为空时关闭导出功能）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// 控制台登录
	NodePassword string
	JWTSecret    string

	// 日志
	LogLevel string
	LogPath  string

	// 自定义滤镜预设文件（JSON，可热更新）
	FiltersFile string

	// 引擎选项覆盖，未设置时为 nil
	EngineLeaveOnEmpty   *bool
	EngineLeaveOnFinish  *bool
	EngineLeaveOnStop    *bool
	EngineNSFW           *bool
	EngineDirectLink     *bool
	EngineSearchSongs    int
	EngineEmptyCooldown  time.Duration
	EngineSearchCooldown time.Duration
	EngineStreamType     string
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

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvBoolPtr 返回环境变量的布尔指针，未设置或无法解析时返回 nil。
func getEnvBoolPtr(key string) *bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return &boolVal
		}
	}
	return nil
}

// getEnvSeconds 将环境变量按秒解析为 time.Duration，未设置时返回 0。
func getEnvSeconds(key string) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "dj"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "1qdj-archives"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		NodePassword: getEnv("NODE_PASSWORD", ""),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", "logs/1qdj.log"),

		FiltersFile: getEnv("FILTERS_FILE", ""),

		EngineLeaveOnEmpty:   getEnvBoolPtr("DJ_LEAVE_ON_EMPTY"),
		EngineLeaveOnFinish:  getEnvBoolPtr("DJ_LEAVE_ON_FINISH"),
		EngineLeaveOnStop:    getEnvBoolPtr("DJ_LEAVE_ON_STOP"),
		EngineNSFW:           getEnvBoolPtr("DJ_NSFW"),
		EngineDirectLink:     getEnvBoolPtr("DJ_DIRECT_LINK"),
		EngineSearchSongs:    getEnvInt("DJ_SEARCH_SONGS", 0),
		EngineEmptyCooldown:  getEnvSeconds("DJ_EMPTY_COOLDOWN"),
		EngineSearchCooldown: getEnvSeconds("DJ_SEARCH_COOLDOWN"),
		EngineStreamType:     getEnv("DJ_STREAM_TYPE", ""),
	}
}

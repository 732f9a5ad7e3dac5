package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Recording RecordingConfig
	Muxer     MuxerConfig
	Ports     PortRangeConfig
}

// ServerConfig holds HTTP+WebSocket control surface settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// RedisConfig holds Redis connection settings, used for cross-instance
// lifecycle event fan-out (see internal/control).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PortRangeConfig bounds the port allocator's candidate range.
type PortRangeConfig struct {
	Min         int
	Max         int
	MaxAttempts int
}

// RecordingConfig holds output-layout and lifecycle-timing settings shared
// by both recorders.
type RecordingConfig struct {
	OutputRoot           string        // $RECORD_FILE_LOCATION_PATH; root for per/ and mixed-*.mp4
	MixedMinRuntime      time.Duration // floor before a mixed stop is honored
	ParticipantMinRuntime time.Duration
	KeyframeInterval     time.Duration // fixed interval for ongoing IDR requests
	StaleThreshold       time.Duration // health sweep force-stop threshold
	HealthCheckInterval  time.Duration
	GridWidth            int
	GridHeight           int
	MaxVideoInputsMixed  int // at most four video producers tiled
}

// MuxerConfig holds the external process paths and timing for the muxer
// supervisor.
type MuxerConfig struct {
	FFmpegPath       string
	FFprobePath      string
	ExitGrace        time.Duration // step 1: wait before assuming still running
	QuitWait         time.Duration // step 2: wait after writing "q\n"
	StarveWait       time.Duration // step 3: wait after closing consumers/endpoints
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Ports: PortRangeConfig{
			Min:         getEnvInt("RECORDING_PORT_MIN", 15000),
			Max:         getEnvInt("RECORDING_PORT_MAX", 55000),
			MaxAttempts: getEnvInt("RECORDING_PORT_MAX_ATTEMPTS", 50),
		},
		Recording: RecordingConfig{
			OutputRoot:            getEnv("RECORD_FILE_LOCATION_PATH", "./files"),
			MixedMinRuntime:       getEnvDuration("RECORDING_MIXED_MIN_RUNTIME", 5*time.Second),
			ParticipantMinRuntime: getEnvDuration("RECORDING_PARTICIPANT_MIN_RUNTIME", 0),
			KeyframeInterval:      getEnvDuration("RECORDING_KEYFRAME_INTERVAL", 2*time.Second),
			StaleThreshold:        getEnvDuration("RECORDING_STALE_THRESHOLD", 2*time.Hour),
			HealthCheckInterval:   getEnvDuration("RECORDING_HEALTH_INTERVAL", 30*time.Second),
			GridWidth:             getEnvInt("RECORDING_GRID_WIDTH", 1280),
			GridHeight:            getEnvInt("RECORDING_GRID_HEIGHT", 720),
			MaxVideoInputsMixed:   getEnvInt("RECORDING_MAX_VIDEO_INPUTS", 4),
		},
		Muxer: MuxerConfig{
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
			ExitGrace:   getEnvDuration("MUXER_EXIT_GRACE", 300*time.Millisecond),
			QuitWait:    getEnvDuration("MUXER_QUIT_WAIT", 30*time.Second),
			StarveWait:  getEnvDuration("MUXER_STARVE_WAIT", 5*time.Second),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

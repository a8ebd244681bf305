package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Postgres  DBConfig
	Redis     RedisConfig
	S3        S3Config
	Logger    Logger
	Worker    WorkerConfig
	Encoder   EncoderConfig
	Lifecycle LifecycleConfig
}

type ServerConfig struct {
	AppVersion   string
	Port         string `validate:"required"`
	Mode         string
	ReadTimeout  int
	WriteTimeout int
	// APIKey protects the ops API when set.
	APIKey string
}

type WorkerConfig struct {
	Concurrency           int     `validate:"gte=1"`
	MaxCPUUsage           float64 `validate:"gt=0,lte=100"`
	MaxDurationSeconds    float64 `validate:"gt=0"`
	MinimumQualities      int     `validate:"gte=1"`
	MaxQualityRetries     int     `validate:"gte=1"`
	MaxVideoRetries       int     `validate:"gte=1"`
	MaxJobAttempts        int     `validate:"gte=1"`
	BackoffBaseSeconds    int     `validate:"gte=1"`
	SweepIntervalSeconds  int     `validate:"gte=1"`
	SweepBatchSize        int     `validate:"gte=1"`
	SchedulerIntervalSecs int     `validate:"gte=1"`
	DequeueTimeoutSeconds int     `validate:"gte=1"`
	LockTTLSeconds        int     `validate:"gte=1"`
	RetainFinishedHours   int     `validate:"gte=0"`
	ScratchDir            string  `validate:"required"`
}

type EncoderConfig struct {
	FFmpegPath     string `validate:"required"`
	FFprobePath    string `validate:"required"`
	Fanout         int    `validate:"gte=1"`
	SegmentSeconds int    `validate:"gte=1"`
	Preset         string `validate:"required"`
	Ladder         []models.QualityProfile `validate:"required,min=1,dive"`
}

type LifecycleConfig struct {
	RetentionHours    int `validate:"gte=1"`
	OrphanMaxAgeHours int `validate:"gte=0"`
	OrphanBatchSize   int `validate:"gte=1"`
}

type DBConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"required"`
	User     string `validate:"required"`
	Password string
	Name     string `validate:"required"`
	SSLMode  string
	PgDriver string
}

type RedisConfig struct {
	RedisAddr     string `validate:"required"`
	RedisPassword string
	DB            int
	MinIdleConns  int
	PoolSize      int
	PoolTimeout   int
	QueuePrefix   string `validate:"required"`
}

type S3Config struct {
	// Provider selects the object store client: "aws" or "minio".
	Provider        string `validate:"oneof=aws minio"`
	Endpoint        string
	Region          string
	AccessKey       string
	SecretKey       string
	UseSSL          bool
	RawBucket       string `validate:"required"`
	EncodedBucket   string `validate:"required"`
	ThumbnailBucket string `validate:"required"`
	PublicBaseURL   string
}

type Logger struct {
	Development       bool
	DisableCaller     bool
	DisableStacktrace bool
	Encoding          string
	Level             string
}

func (w WorkerConfig) LockTTL() time.Duration {
	return time.Duration(w.LockTTLSeconds) * time.Second
}

func (w WorkerConfig) BackoffBase() time.Duration {
	return time.Duration(w.BackoffBaseSeconds) * time.Second
}

func (w WorkerConfig) DequeueTimeout() time.Duration {
	return time.Duration(w.DequeueTimeoutSeconds) * time.Second
}

func (w WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(w.SweepIntervalSeconds) * time.Second
}

func (w WorkerConfig) SchedulerInterval() time.Duration {
	return time.Duration(w.SchedulerIntervalSecs) * time.Second
}

func (w WorkerConfig) RetainFinished() time.Duration {
	return time.Duration(w.RetainFinishedHours) * time.Hour
}

func (l LifecycleConfig) Retention() time.Duration {
	return time.Duration(l.RetentionHours) * time.Hour
}

// PublicURL builds the playback URL of a stored object.
func (s S3Config) PublicURL(bucket, key string) string {
	base := strings.TrimRight(s.PublicBaseURL, "/")
	if base == "" {
		return fmt.Sprintf("s3://%s/%s", bucket, key)
	}
	return fmt.Sprintf("%s/%s/%s", base, bucket, key)
}

// LoadConfig reads the yaml file, an optional .env next to the process and the environment.
func LoadConfig(filename string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filename)
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, errors.New("config file not found")
		}
		return nil, err
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := utils.ValidateStruct(&c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// ApplyDefaults fills every zero value that has a documented default.
func (c *Config) ApplyDefaults() {
	setInt(&c.Worker.Concurrency, 2)
	setFloat(&c.Worker.MaxCPUUsage, 90)
	setFloat(&c.Worker.MaxDurationSeconds, 1800)
	setInt(&c.Worker.MinimumQualities, 2)
	setInt(&c.Worker.MaxQualityRetries, 3)
	setInt(&c.Worker.MaxVideoRetries, 3)
	setInt(&c.Worker.MaxJobAttempts, 3)
	setInt(&c.Worker.BackoffBaseSeconds, 5)
	setInt(&c.Worker.SweepIntervalSeconds, 60)
	setInt(&c.Worker.SweepBatchSize, 50)
	setInt(&c.Worker.SchedulerIntervalSecs, 5)
	setInt(&c.Worker.DequeueTimeoutSeconds, 5)
	setInt(&c.Worker.LockTTLSeconds, 600)
	setInt(&c.Worker.RetainFinishedHours, 24)
	if c.Worker.ScratchDir == "" {
		c.Worker.ScratchDir = filepath.Join(os.TempDir(), "pipeline")
	}

	setString(&c.Encoder.FFmpegPath, "ffmpeg")
	setString(&c.Encoder.FFprobePath, "ffprobe")
	setInt(&c.Encoder.Fanout, 1)
	setInt(&c.Encoder.SegmentSeconds, 6)
	setString(&c.Encoder.Preset, "veryfast")
	if len(c.Encoder.Ladder) == 0 {
		c.Encoder.Ladder = models.DefaultLadder()
	}

	setInt(&c.Lifecycle.RetentionHours, 72)
	setInt(&c.Lifecycle.OrphanMaxAgeHours, 24)
	setInt(&c.Lifecycle.OrphanBatchSize, 50)

	setString(&c.Server.Port, ":8080")
	setString(&c.Server.Mode, "Development")
	setInt(&c.Server.ReadTimeout, 10)
	setInt(&c.Server.WriteTimeout, 10)

	setString(&c.Postgres.PgDriver, "pgx")
	setString(&c.Postgres.SSLMode, "disable")
	setString(&c.Redis.QueuePrefix, "pipeline")
	setInt(&c.Redis.PoolSize, 10)
	setInt(&c.Redis.PoolTimeout, 30)
	setString(&c.S3.Provider, "aws")
	setString(&c.S3.Region, "us-east-1")
	setString(&c.Logger.Encoding, "json")
	setString(&c.Logger.Level, "info")
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// current holds the live configuration. Reloads swap the pointer; sessions
// copy what they need at setup so a reload only affects the next session.
var current atomic.Pointer[Config]

// Config struct is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Experiment ExperimentConfig `mapstructure:"experiment"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	IntakeRateLimit uint   `mapstructure:"intake_rate_limit"` // intake requests per minute per client
}

// DatabaseConfig holds the optional central archive connection settings.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ExperimentConfig holds the protocol parameters of a session.
type ExperimentConfig struct {
	AssetRoot          string        `mapstructure:"asset_root"`
	ExclusionsFile     string        `mapstructure:"exclusions_file"`
	CalibrationPoints  int           `mapstructure:"calibration_points"`
	TrainingTrials     int           `mapstructure:"training_trials"` // unrecorded sample-only trials before the first trial
	TrialTypes         []int         `mapstructure:"trial_types"`
	SampleDuration     time.Duration `mapstructure:"sample_duration"`
	MaskDuration       time.Duration `mapstructure:"mask_duration"`
	TestDuration       time.Duration `mapstructure:"test_duration"`
	InterTrialDuration time.Duration `mapstructure:"inter_trial_duration"`
	Sampling           string        `mapstructure:"sampling"` // "filter" or "retry"
	RetryLimit         int           `mapstructure:"retry_limit"`
	Seed               int64         `mapstructure:"seed"` // 0 seeds from the clock
	GazeQueue          int           `mapstructure:"gaze_queue"`
	ViewportWidth      float64       `mapstructure:"viewport_width"`
	ViewportHeight     float64       `mapstructure:"viewport_height"`
}

// StorageConfig holds where finished session records go.
type StorageConfig struct {
	LocalPath string   `mapstructure:"local_path"`
	ExportDir string   `mapstructure:"export_dir"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config enables uploading exported records when Bucket is set.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Prefix    string `mapstructure:"prefix"`
	PathStyle bool   `mapstructure:"path_style"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.intake_rate_limit", 5)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "gaze-db")

	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7)
	v.SetDefault("logging.compress", true)

	v.SetDefault("experiment.asset_root", "assets/stimuli")
	v.SetDefault("experiment.exclusions_file", "config/exclusions.yaml")
	v.SetDefault("experiment.calibration_points", 10)
	v.SetDefault("experiment.training_trials", 0)
	v.SetDefault("experiment.trial_types", []int{1, 2})
	v.SetDefault("experiment.sample_duration", 3*time.Second)
	v.SetDefault("experiment.mask_duration", 2*time.Second)
	v.SetDefault("experiment.test_duration", 10*time.Second)
	v.SetDefault("experiment.inter_trial_duration", time.Duration(0))
	v.SetDefault("experiment.sampling", "filter")
	v.SetDefault("experiment.retry_limit", 100)
	v.SetDefault("experiment.seed", 0)
	v.SetDefault("experiment.gaze_queue", 1024)
	v.SetDefault("experiment.viewport_width", 1920)
	v.SetDefault("experiment.viewport_height", 1080)

	v.SetDefault("storage.local_path", "data/experiment.db")
	v.SetDefault("storage.export_dir", "exports")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "sessions/")
}

// Validate rejects settings the experiment cannot run with.
func (c *Config) Validate() error {
	e := c.Experiment
	if e.CalibrationPoints <= 0 {
		return fmt.Errorf("experiment.calibration_points must be positive, got %d", e.CalibrationPoints)
	}
	if e.TrainingTrials < 0 {
		return fmt.Errorf("experiment.training_trials must not be negative, got %d", e.TrainingTrials)
	}
	if len(e.TrialTypes) == 0 {
		return errors.New("experiment.trial_types must not be empty")
	}
	for _, k := range e.TrialTypes {
		if k != 1 && k != 2 {
			return fmt.Errorf("experiment.trial_types: unknown trial type %d", k)
		}
	}
	if e.SampleDuration < 0 || e.MaskDuration < 0 || e.TestDuration < 0 || e.InterTrialDuration < 0 {
		return errors.New("experiment phase durations must not be negative")
	}
	if e.Sampling != "filter" && e.Sampling != "retry" {
		return fmt.Errorf("experiment.sampling must be \"filter\" or \"retry\", got %q", e.Sampling)
	}
	if e.RetryLimit <= 0 {
		return fmt.Errorf("experiment.retry_limit must be positive, got %d", e.RetryLimit)
	}
	if e.GazeQueue <= 0 {
		return fmt.Errorf("experiment.gaze_queue must be positive, got %d", e.GazeQueue)
	}
	if e.ViewportWidth <= 0 || e.ViewportHeight <= 0 {
		return errors.New("experiment viewport must have a positive size")
	}
	return nil
}

// Get returns the live configuration, or the defaults if Init has not run.
func Get() *Config {
	if c := current.Load(); c != nil {
		return c
	}
	return Default()
}

// Default returns a configuration built from defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		panic("config defaults do not decode: " + err.Error())
	}
	return &c
}

// Init initializes the configuration with Viper. configFile overrides the
// search path when non-empty.
func Init(projectRoot, configFile string, log *zap.Logger) error {
	// A missing .env is fine; real environment variables still apply.
	if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Could not load .env file", zap.Error(err))
	}

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(filepath.Join(projectRoot, "config"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GAZE") // e.g., GAZE_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	conf, err := decode(v)
	if err != nil {
		return err
	}
	current.Store(conf)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		next, err := decode(v)
		if err != nil {
			log.Error("Error reloading configuration, keeping previous", zap.Error(err))
			return
		}
		current.Store(next)
	})

	log.Info("Configuration loaded successfully", zap.String("file", v.ConfigFileUsed()))
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &c, nil
}

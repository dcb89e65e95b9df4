// Package conf holds the appliance configuration loaded through viper and
// the persisted device settings entity stored on the medium.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/facegate/facegate-go/internal/errors"
)

// LogConfig contains settings for a rotated log file output.
type LogConfig struct {
	Enabled    bool   // true to enable file logging
	Path       string // path to log file
	MaxSize    int    // rotation size in megabytes
	MaxBackups int    // number of rotated files to keep
	MaxAge     int    // days to retain rotated files
}

// MainConfig contains node identity and logging settings.
type MainConfig struct {
	Name string    // name of this device, used in log output
	Log  LogConfig // log file settings
}

// StorageConfig tunes the persistence gateway and mount lifecycle.
type StorageConfig struct {
	Root          string        // storage medium mount point (directory)
	MountAttempts int           // boot mount retry budget
	MountBackoff  time.Duration // base backoff between mount retries, doubles per attempt
	BusClockKHz   []int         // bus clock ladder, one entry per mount attempt
	OpTimeout     time.Duration // storage mutex acquisition bound
}

// RecognitionConfig tunes the attendance cycle.
type RecognitionConfig struct {
	AttemptCooldown     time.Duration // rate limit for sample/detect on every outcome
	RecognitionCooldown time.Duration // suppression window after a successful match
	MemoryFloorMB       uint64        // skip cycles when free memory drops below this
	ConfirmTimes        int           // captures required to complete an enrollment
	MaxTemplates        int           // cap on stored template sets
}

// WebServerConfig contains settings for the control plane HTTP server.
type WebServerConfig struct {
	Enabled bool
	Port    string
}

// SupervisorConfig tunes the background supervision tasks.
type SupervisorConfig struct {
	WatchdogTimeout   time.Duration // watchdog trips when not fed within this window
	LinkCheckInterval time.Duration // connectivity poll interval
	LinkTarget        string        // host:port dialed to probe connectivity
	LinkRetries       int           // reconnect attempts per loss before backing off
	TimeSyncInterval  time.Duration // opportunistic NTP sync interval
}

// Config is the top-level appliance configuration.
type Config struct {
	Debug       bool
	Main        MainConfig
	Storage     StorageConfig
	Recognition RecognitionConfig
	WebServer   WebServerConfig
	Supervisor  SupervisorConfig
}

var (
	configInstance *Config
	configMutex    sync.Mutex
)

// setDefaultConfig sets default values for each configuration parameter.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "FaceGate-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "facegate.log")
	viper.SetDefault("main.log.maxsize", 10)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("storage.root", "data/")
	viper.SetDefault("storage.mountattempts", 4)
	viper.SetDefault("storage.mountbackoff", 250*time.Millisecond)
	viper.SetDefault("storage.busclockkhz", []int{40000, 20000, 10000, 4000})
	viper.SetDefault("storage.optimeout", 2*time.Second)

	viper.SetDefault("recognition.attemptcooldown", 500*time.Millisecond)
	viper.SetDefault("recognition.recognitioncooldown", 5*time.Second)
	viper.SetDefault("recognition.memoryfloormb", 16)
	viper.SetDefault("recognition.confirmtimes", 5)
	viper.SetDefault("recognition.maxtemplates", 7)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")

	viper.SetDefault("supervisor.watchdogtimeout", 8*time.Second)
	viper.SetDefault("supervisor.linkcheckinterval", 30*time.Second)
	viper.SetDefault("supervisor.linktarget", "1.1.1.1:53")
	viper.SetDefault("supervisor.linkretries", 3)
	viper.SetDefault("supervisor.timesyncinterval", time.Hour)
}

// Load reads the appliance configuration, creating a default config file when
// none exists yet.
func Load() (*Config, error) {
	configMutex.Lock()
	defer configMutex.Unlock()

	config := &Config{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	configInstance = config
	return configInstance, nil
}

// GetConfig returns the loaded configuration instance, or nil before Load.
func GetConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return configInstance
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes a config file with the current defaults to the
// first default config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := viper.SafeWriteConfigAs(configPath); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the config file search paths: current
// directory first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "facegate-go"))
	}
	return paths, nil
}

func validateConfig(config *Config) error {
	if config.Storage.Root == "" {
		return errors.Newf("storage.root must not be empty").
			Component("conf").
			Category(errors.CategoryConfig).
			Build()
	}
	if config.Storage.MountAttempts < 1 {
		return errors.Newf("storage.mountattempts must be at least 1, got %d", config.Storage.MountAttempts).
			Component("conf").
			Category(errors.CategoryConfig).
			Build()
	}
	if config.Storage.OpTimeout <= 0 {
		return errors.Newf("storage.optimeout must be positive, got %v", config.Storage.OpTimeout).
			Component("conf").
			Category(errors.CategoryConfig).
			Build()
	}
	if config.Recognition.ConfirmTimes < 1 {
		return errors.Newf("recognition.confirmtimes must be at least 1, got %d", config.Recognition.ConfirmTimes).
			Component("conf").
			Category(errors.CategoryConfig).
			Build()
	}
	return nil
}

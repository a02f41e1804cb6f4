// config.go: defines the configuration structure and loads settings with viper
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// MainSettings contains top level application settings.
type MainSettings struct {
	Name string      // name of this node, used in logs and status events
	Log  LogSettings // main log settings
}

// LogSettings contains settings for file logging.
type LogSettings struct {
	Enabled    bool   // true to enable file logging
	Path       string // path to log file
	MaxSize    int64  // max log file size in bytes before rotation
	MaxBackups int    // number of rotated log files to keep
	MaxAge     int    // days to keep rotated log files
}

// WebServerSettings contains settings for the HTTP server.
type WebServerSettings struct {
	Enabled    bool   // true to enable the web server
	Port       string // port to listen on
	UploadPath string // directory where uploaded images are stored
}

// RecognitionSettings contains settings for the external plate recognition engine.
type RecognitionSettings struct {
	Endpoint  string // URL of the recognition engine detect endpoint
	Timeout   int    // request timeout in seconds
	FileField string // multipart field name the engine expects
	Debug     bool   // true to log engine responses verbatim
}

// IngestSettings contains settings for image upload validation.
type IngestSettings struct {
	AllowedExtensions []string // accepted image file extensions
	MaxUploadSize     int64    // maximum upload size in bytes
	DefaultCameraID   uint     // camera id used when the request does not carry one
}

// MQTTSettings contains settings for the optional MQTT plate publisher.
type MQTTSettings struct {
	Enabled  bool   // true to enable MQTT publishing of detections
	Broker   string // MQTT broker URL
	Topic    string // topic to publish detection events to
	Username string // MQTT username
	Password string // MQTT password
}

// RealtimeSettings contains settings for realtime fan-out channels.
type RealtimeSettings struct {
	MQTT MQTTSettings // MQTT plate publisher settings
}

// SQLiteSettings contains settings for the SQLite database.
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite output
	Path    string // path to the SQLite database file
}

// MySQLSettings contains settings for the MySQL database.
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL output
	Username string // MySQL username
	Password string // MySQL password
	Database string // MySQL database name
	Host     string // MySQL host
	Port     string // MySQL port
}

// OutputSettings contains database output settings.
type OutputSettings struct {
	SQLite SQLiteSettings // SQLite database settings
	MySQL  MySQLSettings  // MySQL database settings
}

// Settings is the top level configuration structure.
type Settings struct {
	Debug bool // true to enable debug logging

	Main        MainSettings
	WebServer   WebServerSettings
	Recognition RecognitionSettings
	Ingest      IngestSettings
	Realtime    RealtimeSettings
	Output      OutputSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
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
			// Config file not found, create one with defaults
			return createDefaultConfig(configPaths)
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the current viper defaults to the primary config path.
func createDefaultConfig(configPaths []string) error {
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := viper.SafeWriteConfigAs(configPath); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the list of directories searched for config.yaml.
// The working directory is checked first, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(userConfigDir, "platewatch"))
	}

	return paths, nil
}

// Setting returns the current settings instance.
// Returns nil if Load() has not been called.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

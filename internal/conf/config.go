// config.go: settings struct for LensNet-Go and functions to load and save it.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/lensnet-go/internal/logger"
)

// CameraSettings selects the frame source.
type CameraSettings struct {
	Driver    string  // capture driver, currently "replay"
	Source    string  // driver specific source, for replay a directory with one subdirectory per device
	Position  string  // initial camera position, "back" or "front"
	Lens      string  // initial lens id, empty selects the default lens for the position
	FrameRate float64 // frames per second delivered by the replay driver
}

// ModelSettings configures the Inference Adapter.
type ModelSettings struct {
	Type          string  // active model: mobilenet_v2, efficientnet_lite0 or resnet50
	Path          string  // directory holding model and label files
	Threads       int     // inference threads, 0 for automatic
	UseXNNPACK    bool    // try the XNNPACK delegate before plain CPU
	TopK          int     // results returned per frame
	MinConfidence float64 // results at or below this confidence are discarded
}

// ThrottleSettings configures the frame throttle.
type ThrottleSettings struct {
	MinInterval time.Duration // minimum spacing between inference submissions
}

// LiveSettings configures the live result aggregator.
type LiveSettings struct {
	ExpiryWindow  time.Duration // detection time to live
	SweepInterval time.Duration // minimum time between registry sweeps
	MaxResults    int           // cap on published live results
	RefreshPolicy string        // "on_raise" or "any_sighting"
}

// HighlightSettings holds the highlight rule set and assisted capture flag.
type HighlightSettings struct {
	Rules           map[string]float64 // normalized label to required confidence
	AssistedCapture bool               // manual capture only allowed while highlighted
}

// BestShotSettings configures best shot sessions.
type BestShotSettings struct {
	Duration        time.Duration // session countdown length
	TargetLabel     string        // label to capture
	Threshold       float64       // minimum confidence for a capture
	CaptureInterval time.Duration // minimum spacing between candidate captures
	KeepTop         int           // candidates returned at the end of a session
	ThumbnailSize   int           // longest thumbnail edge in pixels, 0 disables thumbnails
	FinalizeTimeout time.Duration // how long finalization waits for in-flight captures
	Save            bool          // persist returned candidates to the datastore
}

// PrivacySettings configures face blurring of captured photos.
type PrivacySettings struct {
	FaceBlur  bool   // blur detected faces in captured photos
	Style     string // "pixelate" or "blur"
	BlockSize int    // pixelation block size or blur radius
}

// LocationSettings provides a static location attached to candidates.
type LocationSettings struct {
	Enabled   bool
	Latitude  float64
	Longitude float64
}

// SQLiteSettings configures the SQLite datastore.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings configures the MySQL datastore.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// OutputSettings configures where saved captures go.
type OutputSettings struct {
	Path   string // directory for saved image files
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// MQTTSettings configures the MQTT publisher.
type MQTTSettings struct {
	Enabled         bool
	Broker          string
	Topic           string // base topic, live results go to <topic>/live
	Username        string
	Password        string
	Retain          bool
	PublishInterval time.Duration // minimum spacing between live result messages
	HomeAssistant   struct {
		Discovery bool   // publish Home Assistant discovery configs on connect
		Prefix    string // discovery topic prefix
	}
}

// NotificationSettings configures push notifications through shoutrrr URLs.
type NotificationSettings struct {
	Enabled bool
	URLs    []string
	Timeout time.Duration
}

// TelemetrySettings configures the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string
}

// APISettings configures the HTTP control API.
type APISettings struct {
	Enabled        bool
	Listen         string
	AllowedOrigins []string // CORS origins
	TLSCertFile    string   // serve HTTPS when both files are set
	TLSKeyFile     string
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// MonitoringSettings configures the CPU governor and storage checks.
type MonitoringSettings struct {
	Enabled           bool
	Interval          time.Duration // sampling interval
	CPUHigh           float64       // percent above which the throttle interval is widened
	CPULow            float64       // percent below which the base interval is restored
	MaxIntervalFactor float64       // multiplier applied to the base interval under load
	DiskWarning       float64       // percent usage of the capture storage that raises a warning, 0 disables
}

// Settings contains all configuration options for LensNet-Go.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // name of this node, used in MQTT topics and notifications
	}

	Logging      logger.LoggingConfig
	Camera       CameraSettings
	Model        ModelSettings
	Throttle     ThrottleSettings
	Live         LiveSettings
	Highlight    HighlightSettings
	BestShot     BestShotSettings
	Privacy      PrivacySettings
	Location     LocationSettings
	Output       OutputSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Telemetry    TelemetrySettings
	API          APISettings
	Sentry       SentrySettings
	Monitoring   MonitoringSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configuration into a new Settings. An explicit configFile overrides the
// default search paths; a missing config file leaves the defaults in place.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	v := viper.GetViper()
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings, err := unmarshalSettings(v)
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Defaults returns validated settings built from the default values only.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings, err := unmarshalSettings(v)
	if err != nil {
		// defaults are static and covered by tests
		panic(err)
	}
	return settings
}

func unmarshalSettings(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// initViper registers defaults and reads the configuration file.
func initViper(v *viper.Viper, configFile string) error {
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LENSNET")
	v.AutomaticEnv()

	setDefaultConfig(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Info("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	GetLogger().Info("loaded config file", logger.String("path", v.ConfigFileUsed()))
	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// cross-device rename, fall back to copy
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}
	return nil
}

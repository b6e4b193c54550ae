package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            `yaml:"default_level" mapstructure:"default_level"` // default log level for all modules
	Timezone     string            `yaml:"timezone" mapstructure:"timezone"`           // "Local", "UTC", or an IANA name
	Console      *ConsoleOutput    `yaml:"console" mapstructure:"console"`
	FileOutput   *FileOutput       `yaml:"file_output" mapstructure:"file_output"`
	ModuleLevels map[string]string `yaml:"module_levels" mapstructure:"module_levels"` // per-module log levels
}

// ConsoleOutput represents console logging configuration.
// Console output is human-readable text without timestamps; the supervisor adds them.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" mapstructure:"level"`
}

// FileOutput represents file logging configuration. File output is JSON.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	Level   string `yaml:"level" mapstructure:"level"`
}

const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/lensnet.log"
	DefaultConsoleEnabled = true
	DefaultFileEnabled    = false
)

// applyConfigDefaults fills nil sections so older config files keep console logging.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{Enabled: DefaultConsoleEnabled, Level: cfg.DefaultLevel}
	}
	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{Enabled: DefaultFileEnabled, Path: DefaultLogPath, Level: cfg.DefaultLevel}
	}
	if cfg.Console.Level == "" {
		cfg.Console.Level = cfg.DefaultLevel
	}
	if cfg.FileOutput.Level == "" {
		cfg.FileOutput.Level = cfg.DefaultLevel
	}
	if cfg.FileOutput.Path == "" {
		cfg.FileOutput.Path = DefaultLogPath
	}
}

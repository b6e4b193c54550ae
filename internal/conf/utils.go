// conf/utils.go helpers for locating and writing configuration files
package conf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
)

const appDirName = "lensnet"

var (
	confLogger     logger.Logger
	confLoggerOnce sync.Once
)

// GetLogger returns the module logger for configuration handling.
func GetLogger() logger.Logger {
	confLoggerOnce.Do(func() {
		confLogger = logger.Global().Module("conf")
	})
	return confLogger
}

// GetDefaultConfigPaths returns the configuration search paths for the current OS,
// most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get_home_directory").
			Build()
	}

	paths := []string{"."}
	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", appDirName))
	default:
		paths = append(paths,
			filepath.Join(homeDir, ".config", appDirName),
			filepath.Join("/etc", appDirName))
	}
	return paths, nil
}

// FindConfigFile returns the first config.yaml found in the default search paths.
func FindConfigFile() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	for _, dir := range paths {
		candidate := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Newf("config file not found in %v", paths).
		Component("conf").
		Category(errors.CategoryNotFound).
		Build()
}

// moveFile copies src to dst and removes src, for renames across filesystems.
func moveFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // temp file created by this package
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst) //nolint:gosec // destination is the config path
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	in.Close()
	return os.Remove(src)
}

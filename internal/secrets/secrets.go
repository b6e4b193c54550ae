// Package secrets resolves credentials referenced from the config file.
//
// A configured value is used literally, expanded from the environment with
// ${VAR} or ${VAR:-default}, or read from a mounted secret file when it
// carries the "file:" prefix (Docker and Kubernetes secrets).
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
)

// FilePrefix marks a value naming a secret file.
const FilePrefix = "file:"

// secret files hold tokens and passwords, never more
const maxFileSize = 64 * 1024

var (
	ErrMissingVariable = errors.NewStd("missing environment variable")
	ErrInvalidFile     = errors.NewStd("invalid secret file")
)

// Resolve returns the secret value referenced by value. Secret values are
// never included in errors or logs.
func Resolve(value string) (string, error) {
	if path, ok := strings.CutPrefix(value, FilePrefix); ok {
		return ReadFile(path)
	}
	return Expand(value)
}

// Expand substitutes ${VAR} and ${VAR:-default} references. An unset
// variable without a default is an error.
func Expand(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}
	var missing []string
	out := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if !hasFallback {
			missing = append(missing, name)
		}
		return fallback
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}
	return out, nil
}

// ReadFile reads a secret file, trimming trailing newlines. Files readable
// by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidFile)
	}
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	switch {
	case err != nil:
		return "", errors.New(fmt.Errorf("%w: %w", ErrInvalidFile, err)).
			Component("secrets").
			Category(errors.CategoryFileIO).
			Build()
	case !info.Mode().IsRegular():
		return "", fmt.Errorf("%w: %s is not a regular file", ErrInvalidFile, clean)
	case info.Size() > maxFileSize:
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidFile, clean, maxFileSize)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(clean) //nolint:gosec // operator supplied secret path
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidFile, clean)
	}
	return secret, nil
}

// ResolveFields resolves every field in place, naming the failing fields.
func ResolveFields(fields map[string]*string) error {
	var errs []error
	for name, p := range fields {
		if p == nil || *p == "" {
			continue
		}
		v, err := Resolve(*p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*p = v
	}
	return errors.Join(errs...)
}

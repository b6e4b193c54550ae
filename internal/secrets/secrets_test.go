package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	t.Setenv("LENSNET_TEST_TOKEN", "s3cret")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"literal", "plain-value", "plain-value", false},
		{"empty", "", "", false},
		{"variable", "${LENSNET_TEST_TOKEN}", "s3cret", false},
		{"embedded", "Bearer ${LENSNET_TEST_TOKEN}!", "Bearer s3cret!", false},
		{"default used", "${LENSNET_TEST_UNSET:-fallback}", "fallback", false},
		{"empty default", "${LENSNET_TEST_UNSET:-}", "", false},
		{"missing", "${LENSNET_TEST_UNSET}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMissingVariable)
				assert.Contains(t, err.Error(), "LENSNET_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	good := filepath.Join(dir, "mqtt_password")
	require.NoError(t, os.WriteFile(good, []byte("hunter2\n"), 0o600))
	got, err := ReadFile(good)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = ReadFile(empty)
	require.ErrorIs(t, err, ErrInvalidFile)

	_, err = ReadFile(dir)
	require.ErrorIs(t, err, ErrInvalidFile)

	_, err = ReadFile(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, ErrInvalidFile)

	big := filepath.Join(dir, "big")
	require.NoError(t, os.WriteFile(big, make([]byte, maxFileSize+1), 0o600))
	_, err = ReadFile(big)
	require.ErrorIs(t, err, ErrInvalidFile)
}

func TestResolveFields(t *testing.T) {
	t.Setenv("LENSNET_TEST_DSN", "https://key@sentry.example/1")
	path := filepath.Join(t.TempDir(), "db_password")
	require.NoError(t, os.WriteFile(path, []byte("dbpass"), 0o600))

	dsn := "${LENSNET_TEST_DSN}"
	password := FilePrefix + path
	literal := "broker-pass"
	empty := ""

	require.NoError(t, ResolveFields(map[string]*string{
		"sentry.dsn":            &dsn,
		"output.mysql.password": &password,
		"mqtt.password":         &literal,
		"mqtt.username":         &empty,
	}))
	assert.Equal(t, "https://key@sentry.example/1", dsn)
	assert.Equal(t, "dbpass", password)
	assert.Equal(t, "broker-pass", literal)

	bad := "${LENSNET_TEST_UNSET}"
	err := ResolveFields(map[string]*string{"mqtt.password": &bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mqtt.password")
	assert.Equal(t, "${LENSNET_TEST_UNSET}", bad, "failed fields are left untouched")
}

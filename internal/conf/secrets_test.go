package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lensnet-go/internal/secrets"
)

func TestResolveSecretsKeepsReferences(t *testing.T) {
	t.Setenv("LENSNET_TEST_MQTT_PASSWORD", "broker-secret")
	pwFile := filepath.Join(t.TempDir(), "mysql_password")
	require.NoError(t, os.WriteFile(pwFile, []byte("db-secret\n"), 0o600))

	s := Defaults()
	s.MQTT.Password = "${LENSNET_TEST_MQTT_PASSWORD}"
	s.Output.MySQL.Password = secrets.FilePrefix + pwFile
	s.Notification.URLs = []string{"ntfy://ntfy.sh/${LENSNET_TEST_MQTT_PASSWORD}"}

	resolved, err := s.ResolveSecrets()
	require.NoError(t, err)
	assert.Equal(t, "broker-secret", resolved.MQTT.Password)
	assert.Equal(t, "db-secret", resolved.Output.MySQL.Password)
	assert.Equal(t, "ntfy://ntfy.sh/broker-secret", resolved.Notification.URLs[0])

	assert.Equal(t, "${LENSNET_TEST_MQTT_PASSWORD}", s.MQTT.Password)
	assert.Equal(t, "ntfy://ntfy.sh/${LENSNET_TEST_MQTT_PASSWORD}", s.Notification.URLs[0])
}

func TestResolveSecretsReportsField(t *testing.T) {
	s := Defaults()
	s.Sentry.DSN = "${LENSNET_TEST_UNSET_DSN}"

	_, err := s.ResolveSecrets()
	require.ErrorIs(t, err, secrets.ErrMissingVariable)
	assert.Contains(t, err.Error(), "sentry.dsn")
}

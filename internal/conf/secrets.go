package conf

import (
	"fmt"
	"slices"

	"github.com/tphakala/lensnet-go/internal/secrets"
)

// ResolveSecrets returns a copy of s with credential fields resolved through
// environment expansion or secret files. The original keeps the references
// so saving settings never writes resolved secrets to disk.
func (s *Settings) ResolveSecrets() (*Settings, error) {
	out := *s
	out.Notification.URLs = slices.Clone(s.Notification.URLs)

	fields := map[string]*string{
		"mqtt.username":         &out.MQTT.Username,
		"mqtt.password":         &out.MQTT.Password,
		"output.mysql.username": &out.Output.MySQL.Username,
		"output.mysql.password": &out.Output.MySQL.Password,
		"sentry.dsn":            &out.Sentry.DSN,
	}
	for i := range out.Notification.URLs {
		fields[fmt.Sprintf("notification.urls[%d]", i)] = &out.Notification.URLs[i]
	}
	if err := secrets.ResolveFields(fields); err != nil {
		return nil, err
	}
	return &out, nil
}

package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShoutrrrProviderValidation(t *testing.T) {
	t.Parallel()

	disabled := NewShoutrrrProvider("", false, nil, nil, time.Second)
	require.NoError(t, disabled.ValidateConfig())
	assert.Equal(t, "shoutrrr", disabled.GetName())

	empty := NewShoutrrrProvider("push", true, nil, nil, time.Second)
	require.Error(t, empty.ValidateConfig())

	bad := NewShoutrrrProvider("push", true, []string{"nosuchservice://secrettoken@host"}, nil, time.Second)
	err := bad.ValidateConfig()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secrettoken")
}

func TestShoutrrrProviderTypesAndEndpoints(t *testing.T) {
	t.Parallel()
	p := NewShoutrrrProvider("push", true, []string{"telegram://token@telegram?chats=@mychannel"}, []Type{TypeBestShot}, 0)
	assert.True(t, p.SupportsType(TypeBestShot))
	assert.False(t, p.SupportsType(TypeError))
	assert.Equal(t, []string{"telegram://telegram"}, p.Endpoints())

	require.Error(t, p.Send(t.Context(), &Notification{Message: "x"}), "sender not initialized")
}

func TestTemplatesRejectUnknownFields(t *testing.T) {
	t.Parallel()
	tmpl, err := ParseTemplates("{{.Nope}}", "")
	require.NoError(t, err)
	_, _, err = tmpl.Render(TemplateData{})
	require.Error(t, err)

	_, err = ParseTemplates("{{", "")
	require.Error(t, err)
}

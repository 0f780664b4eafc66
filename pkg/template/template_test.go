package template

import (
	"testing"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMessage_EntityFields(t *testing.T) {
	entity := models.EntitySnapshot{
		"name":  "Acme renewal",
		"stage": "proposal",
		"owner": map[string]any{"name": "Dana"},
	}

	result, err := RenderMessage("{{ .entity.owner.name }}: {{ .entity.name }} moved to {{ upper .entity.stage }}", entity, nil)
	require.NoError(t, err)
	assert.Equal(t, "Dana: Acme renewal moved to PROPOSAL", result)
}

func TestRenderMessage_PlainTextUntouched(t *testing.T) {
	result, err := RenderMessage("Follow up with the customer", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Follow up with the customer", result)
}

func TestRenderMessage_ExtraValuesAndDefaults(t *testing.T) {
	result, err := RenderMessage(`{{ .rule }} for {{ default "unknown" .entity.company }}`, models.EntitySnapshot{}, map[string]any{"rule": "Stale deal"})
	require.NoError(t, err)
	assert.Equal(t, "Stale deal for unknown", result)
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{ .entity.name ", nil)
	assert.Error(t, err)
}

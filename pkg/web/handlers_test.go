package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/cmd"
	"github.com/dukex/dealflow/pkg/config"
	"github.com/dukex/dealflow/pkg/kvstore"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence/file"
	"github.com/dukex/dealflow/pkg/testutil"
	"github.com/dukex/dealflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantID = "acme"

const ruleBody = `{
	"name": "Proposal follow-up",
	"priority": 5,
	"trigger": {"type": "stage_entered", "config": {"toStage": "proposal"}},
	"action": {"type": "create_task", "config": {"title": "Send proposal", "dueInDays": 2}}
}`

func setupTestApp(t *testing.T) (*fiber.App, *cmd.Core) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	clk := clock.NewFake(time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC))

	bus, err := cmd.NewEventBus("gochannel", "", "dealflow-test", logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = bus.Close() })

	core, err := cmd.NewCore(logger, file.NewPersistence(t.TempDir()), bus, kvstore.NewMemory(clk), nil, clk, cmd.CoreOptions{
		Notify: config.DefaultNotifyConfig(),
	})
	require.NoError(t, err)

	validator := validator.New(validator.WithRequiredStructEnabled())
	handlers := web.NewAPIHandlers(core.Rules, core.Templates, core.Workflows, core.Events, validator)

	app := fiber.New()
	app.Get("/health", handlers.HealthCheck)
	handlers.Mount(app.Group("/api/v1"))

	return app, core
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.HeaderTenantID, tenantID)
	req.Header.Set(web.HeaderUserID, "user-1")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}

	return resp, decoded
}

func createRule(t *testing.T, app *fiber.App) string {
	t.Helper()

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/rules", ruleBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	rule := body["rule"].(map[string]any)

	return rule["id"].(string)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestRequireTenant(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRules_CreateGetList(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/rules", ruleBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rule := body["rule"].(map[string]any)
	assert.Equal(t, "active", rule["status"])
	assert.Equal(t, "user-1", rule["created_by"])
	assert.Equal(t, tenantID, rule["tenant_id"])
	assert.Empty(t, body["conflicts"])

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/rules/"+rule["id"].(string), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Proposal follow-up", body["name"])

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/rules?status=active&limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 1, body["total_count"], 0)
	assert.Len(t, body["rules"], 1)
}

func TestRules_Validation(t *testing.T) {
	app, _ := setupTestApp(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed json", "/api/v1/rules", `{"name":`},
		{"short name", "/api/v1/rules", `{"name":"ab","trigger":{"type":"email_opened","config":{}},"action":{"type":"move_stage","config":{"toStage":"won"}}}`},
		{"missing trigger", "/api/v1/rules", `{"name":"No trigger","action":{"type":"move_stage","config":{"toStage":"won"}}}`},
		{"unknown trigger", "/api/v1/rules", `{"name":"Page views","trigger":{"type":"page_viewed","config":{}},"action":{"type":"move_stage","config":{"toStage":"won"}}}`},
		{"bad status", "/api/v1/rules", `{"name":"Bad status","status":"archived","trigger":{"type":"email_opened","config":{}},"action":{"type":"move_stage","config":{"toStage":"won"}}}`},
		{"bad sort", "/api/v1/rules?sort_by=owner", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if tt.body == "" {
				method = http.MethodGet
			}

			resp, body := doRequest(t, app, method, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "validation_error", body["type"])
		})
	}
}

func TestRules_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/rules/missing", "")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "rule_not_found", body["type"])
}

func TestRules_ToggleVersionsRollback(t *testing.T) {
	app, _ := setupTestApp(t)
	id := createRule(t, app)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/rules/"+id+"/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", body["rule"].(map[string]any)["status"])

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/rules/"+id+"/versions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["versions"], 2)

	resp, body = doRequest(t, app, http.MethodPost, "/api/v1/rules/"+id+"/rollback", `{"version":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rule := body["rule"].(map[string]any)
	assert.Equal(t, "active", rule["status"])
	assert.InDelta(t, 3, rule["version"], 0)

	resp, body = doRequest(t, app, http.MethodPost, "/api/v1/rules/"+id+"/rollback", `{"version":9}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "rule_version_not_found", body["type"])
}

func TestRules_CloneAndDelete(t *testing.T) {
	app, _ := setupTestApp(t)
	id := createRule(t, app)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/rules/"+id+"/clone", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	clone := body["rule"].(map[string]any)
	assert.Equal(t, "Proposal follow-up (copy)", clone["name"])
	assert.Equal(t, "paused", clone["status"])

	resp, _ = doRequest(t, app, http.MethodDelete, "/api/v1/rules/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/rules/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRules_DryRun(t *testing.T) {
	app, core := setupTestApp(t)
	entities := core.Persistence.EntityRepository()

	require.NoError(t, entities.SaveEntity(t.Context(), testutil.CreateTestEntity(tenantID, models.EntityTypeDeal, "deal-1", map[string]any{"stage": "proposal"})))
	require.NoError(t, entities.SaveEntity(t.Context(), testutil.CreateTestEntity(tenantID, models.EntityTypeDeal, "deal-2", map[string]any{"stage": "qualified"})))

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/rules/dry-run", ruleBody)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	assert.InDelta(t, 2, body["evaluated"], 0)
	assert.InDelta(t, 1, body["affected_count"], 0)
	assert.Equal(t, []any{"deal-1"}, body["sample_entity_ids"])
	assert.NotEmpty(t, body["description"])

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/executions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0, body["total_count"], 0)
}

func TestTemplates_Marketplace(t *testing.T) {
	app, core := setupTestApp(t)

	_, err := core.Templates.SeedCatalog(t.Context())
	require.NoError(t, err)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/templates", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["templates"], 6)

	resp, body = doRequest(t, app, http.MethodPost, "/api/v1/templates/builtin-reply-moves-to-engaged/install", `{"name":"Replies to engaged"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	rule := body["rule"].(map[string]any)
	assert.Equal(t, "Replies to engaged", rule["name"])
	assert.Equal(t, "paused", rule["status"])

	resp, body = doRequest(t, app, http.MethodPost, "/api/v1/templates/builtin-reply-moves-to-engaged/rate", `{"rating":4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 4.0, body["average_rating"], 0.001)

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/templates/builtin-reply-moves-to-engaged/rate", `{"rating":6}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doRequest(t, app, http.MethodDelete, "/api/v1/templates/builtin-reply-moves-to-engaged", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", body["type"])

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/templates/unknown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTemplates_ExportImportAndRevise(t *testing.T) {
	app, core := setupTestApp(t)

	_, err := core.Templates.SeedCatalog(t.Context())
	require.NoError(t, err)

	resp, exported := doRequest(t, app, http.MethodGet, "/api/v1/templates/builtin-meeting-score/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "meeting_held", exported["triggerType"])
	assert.Equal(t, "update_field", exported["actionType"])

	data, err := json.Marshal(exported)
	require.NoError(t, err)

	resp, imported := doRequest(t, app, http.MethodPost, "/api/v1/templates/import", string(data))
	require.Equal(t, http.StatusCreated, resp.StatusCode, imported)
	assert.Equal(t, tenantID, imported["tenant_id"])

	id := imported["id"].(string)

	resp, revised := doRequest(t, app, http.MethodPut, "/api/v1/templates/"+id, `{
		"name": "Meetings are worth more",
		"trigger": {"type": "meeting_held", "config": {}},
		"action": {"type": "update_field", "config": {"updateType": "score", "delta": 30}},
		"note": "bump score"
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, revised)
	assert.InDelta(t, 2, revised["version"], 0)

	resp, rolled := doRequest(t, app, http.MethodPost, "/api/v1/templates/"+id+"/rollback", `{"version":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, rolled)
	assert.InDelta(t, 3, rolled["version"], 0)
	assert.Equal(t, exported["name"], rolled["name"])

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/templates/import", `{"name":"Broken"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["type"])
}

func TestTemplates_SaveRuleAsTemplate(t *testing.T) {
	app, _ := setupTestApp(t)
	id := createRule(t, app)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/templates", `{"rule_id":"`+id+`","category":"pipeline","tags":["proposal"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "Proposal follow-up", body["name"])
	assert.Equal(t, "pipeline", body["category"])

	resp, _ = doRequest(t, app, http.MethodDelete, "/api/v1/templates/"+body["id"].(string), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWorkflows_EnrollAndStop(t *testing.T) {
	app, core := setupTestApp(t)

	require.NoError(t, core.Persistence.EntityRepository().SaveEntity(t.Context(),
		testutil.CreateTestEntity(tenantID, models.EntityTypeDeal, "deal-1", map[string]any{"name": "Acme renewal"})))

	definition, err := json.Marshal(testutil.CreateTestWorkflow("", "wf-follow-up"))
	require.NoError(t, err)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/workflows", string(definition))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.InDelta(t, 1, body["version"], 0)

	resp, enrollment := doRequest(t, app, http.MethodPost, "/api/v1/workflows/wf-follow-up/enrollments", `{"entity_type":"deal","entity_id":"deal-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, enrollment)
	assert.Equal(t, "active", enrollment["status"])
	assert.Equal(t, "wait", enrollment["current_node_id"])

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/workflows/wf-follow-up/enrollments", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["enrollments"], 1)

	id := enrollment["id"].(string)

	resp, body = doRequest(t, app, http.MethodPost, "/api/v1/enrollments/"+id+"/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "stopped", body["status"])

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/enrollments/"+id+"/stop", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/enrollments/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWorkflows_RejectsNonExecutableGraph(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/workflows", `{
		"name": "Broken graph",
		"entry_node_id": "missing",
		"nodes": [{"node_id": "stop", "type": "stop"}]
	}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["type"])
}

func TestEvents_Ingest(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/events", `{
		"type": "stage_changed",
		"entityType": "deal",
		"entityId": "deal-1",
		"payload": {"to_stage": "proposal"}
	}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
	assert.Equal(t, tenantID, body["tenantId"])
	assert.NotEmpty(t, body["id"])

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/events", `{"type": "stage_changed"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/cmd"
	"github.com/dukex/dealflow/pkg/config"
	"github.com/dukex/dealflow/pkg/kvstore"
	"github.com/dukex/dealflow/pkg/metrics"
	"github.com/dukex/dealflow/pkg/persistence/file"
	"github.com/dukex/dealflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	clk := clock.NewFake(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))

	core, err := cmd.NewCore(logger, file.NewPersistence(t.TempDir()), nil, kvstore.NewMemory(clk), metrics.New(), clk, cmd.CoreOptions{
		Notify: config.DefaultNotifyConfig(),
	})
	require.NoError(t, err)

	return NewAPI(logger, core).App()
}

func get(t *testing.T, app *fiber.App, path string, headers map[string]string) (*http.Response, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	resp, body := get(t, app, "/", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Dealflow API", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz", "/health"} {
		resp, _ := get(t, app, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAPI_Metrics(t *testing.T) {
	app := setupTestApp(t)

	resp, body := get(t, app, "/metrics", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(body, "go_goroutines"), "expected Go runtime collectors")
}

func TestAPI_TenantRoutesMounted(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := get(t, app, "/api/v1/rules", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := get(t, app, "/api/v1/rules", map[string]string{web.HeaderTenantID: "acme"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"total_count":0`)
}

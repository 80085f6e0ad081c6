package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r19g75/modbus-bus-diag/services"
)

type fakeController struct {
	mode  string
	calls []string
}

func (f *fakeController) StartAnalysis() error {
	f.calls = append(f.calls, "analyze")
	if f.mode != "idle" {
		return services.ErrBusy
	}
	f.mode = "analyzing"
	return nil
}

func (f *fakeController) StartScan() error {
	f.calls = append(f.calls, "scan")
	if f.mode != "idle" {
		return services.ErrBusy
	}
	f.mode = "scanning"
	return nil
}

func (f *fakeController) Stop() error {
	f.calls = append(f.calls, "stop")
	if f.mode == "idle" {
		return services.ErrNotRunning
	}
	f.mode = "idle"
	return nil
}

func (f *fakeController) Status() services.Status {
	return services.Status{Mode: f.mode}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    services.Status `json:"data"`
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestStatusAndCommands(t *testing.T) {
	ctrl := &fakeController{mode: "idle"}
	h := NewHandler(ctrl)

	rec, env := do(t, h, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 200, env.Code)
	assert.Equal(t, "idle", env.Data.Mode)

	rec, env = do(t, h, http.MethodPost, "/api/scan")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "scanning", env.Data.Mode)

	rec, env = do(t, h, http.MethodPost, "/api/analyze")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, services.ErrBusy.Error(), env.Message)

	rec, _ = do(t, h, http.MethodPost, "/api/stop")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/stop")
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, []string{"scan", "analyze", "stop", "stop"}, ctrl.calls)
}

func TestMethodNotAllowed(t *testing.T) {
	ctrl := &fakeController{mode: "idle"}
	rec, env := do(t, NewHandler(ctrl), http.MethodGet, "/api/scan")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Equal(t, 405, env.Code)
	assert.Empty(t, ctrl.calls)
}

//go:build !integration

package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/points"
	"github.com/airqa/inspect-cli/internal/store/storetest"
)

func TestResolvePort_FlagWins(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
}

func TestResolvePort_ConfigFallback(t *testing.T) {
	assert.Equal(t, 8080, resolvePort(0, 8080))
}

func TestBuildMux_HealthEndpoint(t *testing.T) {
	cfg = testConfig()
	mux := buildMux(testEnv(storetest.New()))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
}

func TestBuildMux_Providers(t *testing.T) {
	cfg = testConfig()
	st := storetest.New()
	st.Seed(
		model.ServiceConfig{Name: "backup", Format: model.FormatOpenAI, Priority: 50, Active: true},
		model.ServiceConfig{Name: "primary", Format: model.FormatGemini, Priority: 10, Active: true, Default: true},
	)
	mux := buildMux(testEnv(st))

	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var configs []model.ServiceConfig
	err := json.Unmarshal(rr.Body.Bytes(), &configs)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "primary", configs[0].Name)
	assert.Equal(t, "backup", configs[1].Name)
}

func TestBuildMux_PointsSuggest(t *testing.T) {
	cfg = testConfig()
	mux := buildMux(testEnv(storetest.New()))

	req := httptest.NewRequest(http.MethodGet, "/points/suggest?limit=3&exclude=客厅", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var suggestions []points.Suggestion
	err := json.Unmarshal(rr.Body.Bytes(), &suggestions)
	require.NoError(t, err)
	require.Len(t, suggestions, 3)
	for _, s := range suggestions {
		assert.Equal(t, "default", s.Source)
		assert.NotEqual(t, "客厅", s.Name)
	}
}

func TestBuildMux_OCR_InvalidBody(t *testing.T) {
	cfg = testConfig()
	mux := buildMux(testEnv(storetest.New()))

	req := httptest.NewRequest(http.MethodPost, "/ocr", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestBuildMux_OCR_MissingImage(t *testing.T) {
	cfg = testConfig()
	mux := buildMux(testEnv(storetest.New()))

	body, _ := json.Marshal(map[string]string{"user": "alice"})
	req := httptest.NewRequest(http.MethodPost, "/ocr", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "image_base64 is required")
}

func TestBuildMux_OCR_Success(t *testing.T) {
	srv := httptest.NewServer(geminiJSON(
		`{"phone": "13812345678", "date": "06-21", "check_type": "初检", "points": {"客厅": 0.10}}`))
	defer srv.Close()

	cfg = testConfig()
	st := storetest.New()
	seedGemini(st, srv.URL)
	mux := buildMux(testEnv(st))

	body, _ := json.Marshal(map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString([]byte{0xff}),
		"user":         "alice",
	})
	req := httptest.NewRequest(http.MethodPost, "/ocr", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result model.ConsensusResult
	err := json.Unmarshal(rr.Body.Bytes(), &result)
	require.NoError(t, err)
	assert.Equal(t, "13812345678", result.Phone)
	assert.Equal(t, 2, result.AttemptsUsed)
	assert.InDelta(t, 0.10, result.Points["客厅"], 1e-9)

	// The acting user travels from the request into the audit trail.
	calls := st.LogsOfKind(model.CallOCR)
	require.NotEmpty(t, calls)
	assert.Equal(t, "alice", calls[0].User)
}

func TestBuildMux_OCR_BackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg = testConfig()
	st := storetest.New()
	seedGemini(st, srv.URL)
	mux := buildMux(testEnv(st))

	body, _ := json.Marshal(map[string]any{
		"image_base64": base64.StdEncoding.EncodeToString([]byte{0xff}),
	})
	req := httptest.NewRequest(http.MethodPost, "/ocr", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "recognition failed")
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve-IX/Ezra/pkg/auth"
	"github.com/Steve-IX/Ezra/pkg/config"
	"github.com/Steve-IX/Ezra/pkg/contracts"
)

const planReply = "```json\n" + `[{"type":"install","description":"Install htop","risk_level":"low","commands":["apt-get install -y htop"]}]` + "\n```"

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		content, _ := json.Marshal(planReply)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "llama3.1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": `+string(content)+`}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 20, "total_tokens": 60}
		}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, ollamaURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	providersFile := filepath.Join(dir, "providers.yaml")
	require.NoError(t, os.WriteFile(providersFile, []byte("providers:\n  - kind: ollama\n    base_url: "+ollamaURL+"\n"), 0o600))

	return &config.Config{
		Port:            "3000",
		LogLevel:        "INFO",
		DataDir:         dir,
		KeyFile:         filepath.Join(dir, "companion.key"),
		DefaultProvider: "ollama",
		ProvidersFile:   providersFile,
		ProviderTimeout: 5 * time.Second,
		PlanTTL:         time.Hour,
		Ledger:          "sql",
		Archive:         config.ArchiveConfig{Type: "fs"},
		RateLimitRPS:    100,
		RateLimitBurst:  100,
		JWTSecret:       "test-secret",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildApp_EndToEnd(t *testing.T) {
	cfg := testConfig(t, fakeOllama(t).URL)
	require.NoError(t, cfg.Validate())

	a, err := buildApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })

	srv := httptest.NewServer(a.handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := `{"device_info":{"id":"dev-1","platform":"linux"},"user_prompt":"install htop"}`
	resp, err = http.Post(srv.URL+"/api/v1/agent/plan", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := auth.NewJWTValidator(cfg.JWTSecret).Issue("operator", time.Minute)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/agent/plan", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var result contracts.PlanResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotNil(t, result.ActionPlan)
	require.NotNil(t, result.ActionPlan.Signature)
	assert.Equal(t, a.signer.PublicKey(), result.ActionPlan.Signature.PublicKey)
	assert.Equal(t, "ollama", result.ActionPlan.Metadata.Provider)
	assert.Equal(t, contracts.RiskLow, result.EstimatedRisk)

	assert.FileExists(t, cfg.KeyFile)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "ezra.db"))
	entries, err := os.ReadDir(filepath.Join(cfg.DataDir, "archive"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// The offline verifier accepts the HTTP response as-is.
	var out bytes.Buffer
	require.NoError(t, runVerify(&out, raw, a.signer.PublicKey()))
	assert.Contains(t, out.String(), "OK")
}

func TestBuildApp_BadPolicyFile(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.RiskPolicyFile = filepath.Join(cfg.DataDir, "missing.yaml")
	_, err := buildApp(context.Background(), cfg, discardLogger())
	assert.Error(t, err)
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "companion.key")
	var out bytes.Buffer
	cmd := rootCmd(&out, io.Discard)
	cmd.SetArgs([]string{"keygen", "--out", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "public key:")
	assert.FileExists(t, path+".pub")

	seed, err := os.ReadFile(path)
	require.NoError(t, err)

	cmd = rootCmd(io.Discard, io.Discard)
	cmd.SetArgs([]string{"keygen", "--out", path})
	assert.Error(t, cmd.Execute(), "existing key must not be replaced silently")

	cmd = rootCmd(io.Discard, io.Discard)
	cmd.SetArgs([]string{"keygen", "--out", path, "--force"})
	require.NoError(t, cmd.Execute())
	replaced, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, seed, replaced)
}

func TestVerify_RejectsTamperedPlan(t *testing.T) {
	cfg := testConfig(t, fakeOllama(t).URL)
	cfg.JWTSecret = ""
	a, err := buildApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/agent/plan",
		strings.NewReader(`{"device_info":{"id":"dev-1","platform":"linux"},"user_prompt":"install htop"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result contracts.PlanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	result.ActionPlan.Actions[0].RiskLevel = contracts.RiskCritical
	tampered, err := json.Marshal(result.ActionPlan)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, tampered, 0o600))

	var out bytes.Buffer
	cmd := rootCmd(&out, io.Discard)
	cmd.SetArgs([]string{"verify", path})
	assert.ErrorIs(t, cmd.Execute(), errVerifyFailed)
	assert.Contains(t, out.String(), "INVALID")
}

func TestVerify_UntrustedKey(t *testing.T) {
	var out bytes.Buffer
	err := runVerify(&out, []byte(`{"id":"p1","signature":{"algorithm":"ed25519","public_key":"","signature":""}}`), "")
	assert.ErrorIs(t, err, errVerifyFailed)

	err = runVerify(&out, []byte(`{"id":"p1"}`), "")
	assert.Error(t, err)

	err = runVerify(&out, []byte(`not json`), "")
	assert.Error(t, err)

	err = runVerify(&out, []byte(`{"id":"p1","id":"p2","signature":{"algorithm":"ed25519"}}`), "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errVerifyFailed, "duplicate members are a parse error")
}

func TestToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runToken(&out, "s3cret", "device-7", time.Minute))

	claims, err := auth.NewJWTValidator("s3cret").Validate(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "device-7", claims.Subject)

	assert.Error(t, runToken(io.Discard, "", "device-7", time.Minute))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd(&out, io.Discard)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "ezra-companion version dev\n", out.String())
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

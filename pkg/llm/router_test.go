package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve-IX/Ezra/pkg/llm"
	"github.com/Steve-IX/Ezra/pkg/llm/llmtest"
)

func TestRouter_Generate(t *testing.T) {
	openai := llmtest.New("openai", "hello")
	r := llm.NewRouter("openai", []llm.Provider{openai})

	resp, err := r.Generate(context.Background(), llm.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "openai", resp.Provider, "provider name is filled in")
	assert.Equal(t, 1, openai.Calls())
}

func TestRouter_GenerateErrors(t *testing.T) {
	down := llmtest.New("anthropic", "x")
	down.Unavailable = true
	r := llm.NewRouter("openai", []llm.Provider{down})

	_, err := r.Generate(context.Background(), llm.GenerateRequest{Provider: "mistral"})
	assert.ErrorIs(t, err, llm.ErrUnsupportedProvider)

	_, err = r.Generate(context.Background(), llm.GenerateRequest{Provider: "anthropic"})
	assert.ErrorIs(t, err, llm.ErrProviderUnavailable)
	assert.Zero(t, down.Calls(), "unavailable provider must not be called")

	_, err = r.Generate(context.Background(), llm.GenerateRequest{})
	assert.ErrorIs(t, err, llm.ErrUnsupportedProvider, "default provider not registered")
}

func TestRouter_GenerateWithFallback(t *testing.T) {
	boom := errors.New("upstream 503")

	t.Run("second succeeds", func(t *testing.T) {
		a := llmtest.Failing("a", boom)
		b := llmtest.New("b", "from b")
		r := llm.NewRouter("a", []llm.Provider{a, b})

		resp, err := r.GenerateWithFallback(context.Background(), llm.GenerateRequest{Provider: "a"}, []string{"b"})
		require.NoError(t, err)
		assert.Equal(t, "from b", resp.Content)
		assert.Equal(t, "b", resp.Provider)
		assert.Equal(t, 1, a.Calls(), "one attempt per provider")
	})

	t.Run("all fail", func(t *testing.T) {
		a := llmtest.Failing("a", boom)
		b := llmtest.Failing("b", llm.NewFatalError(errors.New("401")))
		r := llm.NewRouter("a", []llm.Provider{a, b})

		_, err := r.GenerateWithFallback(context.Background(), llm.GenerateRequest{Provider: "a"}, []string{"b", "missing"})
		require.Error(t, err)
		assert.ErrorIs(t, err, llm.ErrAllProvidersFailed)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, llm.ErrUnsupportedProvider)

		var fe *llm.FallbackError
		require.ErrorAs(t, err, &fe)
		require.Len(t, fe.Attempts, 3)
		assert.Equal(t, []string{"a", "b", "missing"}, []string{fe.Attempts[0].Provider, fe.Attempts[1].Provider, fe.Attempts[2].Provider})
	})

	t.Run("unavailable skipped", func(t *testing.T) {
		a := llmtest.New("a", "from a")
		a.Unavailable = true
		b := llmtest.New("b", "from b")
		r := llm.NewRouter("a", []llm.Provider{a, b})

		resp, err := r.GenerateWithFallback(context.Background(), llm.GenerateRequest{}, []string{"b"})
		require.NoError(t, err)
		assert.Equal(t, "b", resp.Provider)
		assert.Zero(t, a.Calls())
	})

	t.Run("duplicates attempted once", func(t *testing.T) {
		a := llmtest.Failing("a", boom)
		r := llm.NewRouter("a", []llm.Provider{a})

		_, err := r.GenerateWithFallback(context.Background(), llm.GenerateRequest{Provider: "a"}, []string{"a", "a"})
		assert.ErrorIs(t, err, llm.ErrAllProvidersFailed)
		assert.Equal(t, 1, a.Calls())
	})
}

func TestRouter_CallTimeoutCountsAsFailure(t *testing.T) {
	slow := &llmtest.Provider{
		ProviderName: "slow",
		Hook: func(ctx context.Context, _ llm.GenerateRequest) (*llm.GenerateResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	fast := llmtest.New("fast", "ok")
	r := llm.NewRouter("slow", []llm.Provider{slow, fast}, llm.WithCallTimeout(20*time.Millisecond))

	_, err := r.Generate(context.Background(), llm.GenerateRequest{})
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	resp, err := r.GenerateWithFallback(context.Background(), llm.GenerateRequest{}, []string{"fast"})
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Provider)
}

func TestRouter_SelectProvider(t *testing.T) {
	openai := llmtest.New("openai", "")
	anthropic := llmtest.New("anthropic", "")
	ollama := llmtest.New("ollama", "")

	r := llm.NewRouter("openai", []llm.Provider{ollama, openai, anthropic})

	assert.Equal(t, "openai", r.SelectProvider("Fix this CODE for me"))
	assert.Equal(t, "openai", r.SelectProvider("a technical migration"))
	assert.Equal(t, "anthropic", r.SelectProvider("some creative wallpaper ideas"))
	assert.Equal(t, "anthropic", r.SelectProvider("help writing a readme"))
	assert.Equal(t, "ollama", r.SelectProvider("install htop"), "first available in registration order")

	openai.Unavailable = true
	assert.Equal(t, "ollama", r.SelectProvider("code review"), "preferred provider unavailable")

	ollama.Unavailable = true
	anthropic.Unavailable = true
	assert.Equal(t, "openai", r.SelectProvider("anything"), "default when nothing is available")
}

func TestRouter_SelectProviderCustomPreferences(t *testing.T) {
	gemini := llmtest.New("google", "")
	local := llmtest.New("ollama", "")
	r := llm.NewRouter("ollama", []llm.Provider{local, gemini},
		llm.WithCodingProvider("google"), llm.WithProseProvider("ollama"))

	assert.Equal(t, "google", r.SelectProvider("write code"))
	assert.Equal(t, "ollama", r.SelectProvider("creative"))
}

func TestRouter_ListAvailableAndStatus(t *testing.T) {
	a := llmtest.New("a", "")
	b := llmtest.New("b", "")
	b.Unavailable = true
	b.Limit = llm.RateLimit{RequestsPerMinute: 50, TokensPerMinute: 40000}
	c := llmtest.New("c", "")

	r := llm.NewRouter("a", []llm.Provider{c, a, b})
	assert.Equal(t, []string{"c", "a"}, r.ListAvailable())

	status := r.Status()
	require.Len(t, status, 3)
	assert.Equal(t, llm.ProviderStatus{Name: "b", Available: false, RateLimit: b.Limit}, status[2])
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := llm.NewMetrics(reg)
	ok := llmtest.New("ok", "x")
	bad := llmtest.Failing("bad", errors.New("nope"))
	r := llm.NewRouter("ok", []llm.Provider{ok, bad}, llm.WithMetrics(m))

	_, _ = r.GenerateWithFallback(context.Background(), llm.GenerateRequest{Provider: "bad"}, []string{"ok"})

	n, err := testutil.GatherAndCount(reg, "ezra_provider_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per provider/outcome")
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{408, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		err := llm.ClassifyHTTPError("openai", tt.status, []byte("body"))
		assert.Equal(t, tt.transient, llm.IsTransient(err), tt.status)
		assert.Equal(t, !tt.transient, llm.IsFatal(err), tt.status)
	}
}

func TestScore(t *testing.T) {
	c := llm.Score(nil, "stop")
	require.NotNil(t, c)
	assert.InDelta(t, 0.9, *c, 1e-9)

	c = llm.Score(nil, "length")
	require.NotNil(t, c)
	assert.InDelta(t, 0.6, *c, 1e-9)

	assert.Nil(t, llm.Score(nil, ""))

	clamp := llm.Score(func(string) (float64, bool) { return 4, true }, "stop")
	require.NotNil(t, clamp)
	assert.Equal(t, 1.0, *clamp)
}

package generation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lamontai/lamontai/internal/generation"
	"github.com/lamontai/lamontai/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func completionResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"model": "test-model",
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 340, "total_tokens": 352},
	}
}

func TestCompleteParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		json.NewEncoder(w).Encode(completionResponse("<h2>Hello</h2>"))
	}))
	defer srv.Close()

	c := generation.NewClient(generation.Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, zap.NewNop())

	res, err := c.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "<h2>Hello</h2>", res.Content)
	assert.Equal(t, "test-model", res.Model)
	assert.Equal(t, 12, res.PromptTokens)
	assert.Equal(t, 340, res.CompletionTokens)
}

func TestCompleteRetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(completionResponse("ok"))
	}))
	defer srv.Close()

	c := generation.NewClient(generation.Config{
		BaseURL:    srv.URL,
		Model:      "test-model",
		MaxRetries: 2,
		Timeout:    5 * time.Second,
	}, zap.NewNop())

	res, err := c.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCompleteDoesNotRetryOn400(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	}))
	defer srv.Close()

	c := generation.NewClient(generation.Config{
		BaseURL:    srv.URL,
		Model:      "test-model",
		MaxRetries: 3,
		Timeout:    5 * time.Second,
	}, zap.NewNop())

	_, err := c.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBuildArticlePrompt(t *testing.T) {
	profile := &models.BusinessProfile{
		Description:    "We sell handmade chairs.",
		TargetAudience: "Interior designers.",
	}
	settings := &models.Settings{Language: "en", Tone: "professional", WordCount: 1200}
	competitors := []models.Competitor{{Name: "ChairCo", Domain: "chairco.example"}}

	system, user := generation.BuildArticlePrompt(profile, settings, competitors, "ergonomic chairs", "Why Ergonomics Matter")

	assert.Contains(t, system, "professional")
	assert.Contains(t, system, "1200")
	assert.Contains(t, user, "ergonomic chairs")
	assert.Contains(t, user, "Why Ergonomics Matter")
	assert.Contains(t, user, "handmade chairs")
	assert.Contains(t, user, "chairco.example")
}

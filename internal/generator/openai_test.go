package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/config"
	"github.com/jason-s-yu/aiquiz/internal/secret"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKey string

func (k staticKey) Secret(context.Context) (string, error) { return string(k), nil }

type failingKey struct{}

func (failingKey) Secret(context.Context) (string, error) { return "", errors.New("no key") }

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-test",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func draftsJSON(t *testing.T, n int) string {
	t.Helper()
	var list draftList
	for i := 0; i < n; i++ {
		list.Questions = append(list.Questions, draft(i))
	}
	data, err := json.Marshal(list)
	require.NoError(t, err)
	return string(data)
}

func newTestOpenAI(t *testing.T, keys secret.Provider, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := config.GeneratorConfig{BaseURL: srv.URL + "/", Model: "gpt-test", Temperature: 0.9}
	return NewOpenAI(cfg, keys, srv.Client(), logger)
}

func TestOpenAIGenerate(t *testing.T) {
	reply := draftsJSON(t, 7)
	var gotAuth string
	var gotBody map[string]any
	o := newTestOpenAI(t, staticKey("sk-test"), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(reply))
	})

	questions, err := o.Generate(context.Background(), Request{Keywords: []string{"space", "planets"}, Count: 5})
	require.NoError(t, err)
	assert.Len(t, questions, 5)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-test", gotBody["model"])
	assert.Equal(t, 0.9, gotBody["temperature"])

	messages, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Contains(t, fmt.Sprint(user["content"]), "space, planets")
	assert.Contains(t, fmt.Sprint(user["content"]), "Write 7 questions")
}

func TestOpenAIGenerateTooFewQuestions(t *testing.T) {
	reply := draftsJSON(t, 3)
	o := newTestOpenAI(t, staticKey("sk-test"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completion(reply))
	})
	_, err := o.Generate(context.Background(), Request{Keywords: []string{"space"}, Count: 5})
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestOpenAIGenerateUpstreamError(t *testing.T) {
	o := newTestOpenAI(t, staticKey("sk-test"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})
	_, err := o.Generate(context.Background(), Request{Keywords: []string{"space"}, Count: 1})
	assert.True(t, apperr.Is(err, apperr.Unavailable))
}

func TestOpenAIGenerateHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	o := newTestOpenAI(t, staticKey("sk-test"), func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := o.Generate(ctx, Request{Keywords: []string{"space"}, Count: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline"))
}

func TestOpenAIGenerateWithoutKey(t *testing.T) {
	called := false
	o := newTestOpenAI(t, failingKey{}, func(w http.ResponseWriter, r *http.Request) { called = true })
	_, err := o.Generate(context.Background(), Request{Keywords: []string{"space"}, Count: 1})
	assert.True(t, apperr.Is(err, apperr.Unavailable))
	assert.False(t, called)
}

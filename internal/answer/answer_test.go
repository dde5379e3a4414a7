package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbqa/internal/domain"
)

const testKeyEnv = "KBQA_TEST_CHAT_KEY"

var results = []domain.Result{
	{Text: "Refunds are issued within fourteen days. Contact billing for exceptions.", Source: "refunds.md", Rank: 0},
	{Text: "Shipping to Europe takes five days.\nShipping inside the country takes two days.", Source: "shipping.md", Rank: 1},
}

func TestBuildContext(t *testing.T) {
	got := BuildContext(results[:1])
	assert.Equal(t, "Source: refunds.md\n"+results[0].Text, got)

	got = BuildContext(results)
	assert.Equal(t, "Source: refunds.md\n"+results[0].Text+"\n\nSource: shipping.md\n"+results[1].Text, got)

	assert.Empty(t, BuildContext(nil))
}

func TestExtractive(t *testing.T) {
	g := NewExtractive(1)

	got, err := g.Answer(testContext(t), "How long do refunds take?", results)
	require.NoError(t, err)
	assert.Equal(t, "Refunds are issued within fourteen days.", got)

	got, err = NewExtractive(5).Answer(testContext(t), "shipping days", results)
	require.NoError(t, err)
	assert.Equal(t, "Refunds are issued within fourteen days. Shipping to Europe takes five days. Shipping inside the country takes two days.", got,
		"sentences keep context order")

	got, err = g.Answer(testContext(t), "What is the wifi password?", results)
	require.NoError(t, err)
	assert.Equal(t, NotFound, got)

	got, err = g.Answer(testContext(t), "refunds", nil)
	require.NoError(t, err)
	assert.Equal(t, NotFound, got)
}

func chatServer(t *testing.T, status int, reply string) (*httptest.Server, *goopenai.ChatCompletionRequest) {
	t.Helper()
	var seen goopenai.ChatCompletionRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(goopenai.ChatCompletionResponse{
			Choices: []goopenai.ChatCompletionChoice{{
				Message: goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: reply},
			}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestOpenAIAnswer(t *testing.T) {
	t.Setenv(testKeyEnv, "test-key")
	srv, seen := chatServer(t, http.StatusOK, "  Fourteen days.  ")

	g, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKeyEnv: testKeyEnv})
	require.NoError(t, err)

	got, err := g.Answer(testContext(t), "How long do refunds take?", results)
	require.NoError(t, err)
	assert.Equal(t, "Fourteen days.", got)

	assert.Equal(t, DefaultModel, seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, goopenai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Equal(t, systemPrompt, seen.Messages[0].Content)
	assert.Equal(t, "Context:\n"+BuildContext(results)+"\n\nQuestion:\nHow long do refunds take?", seen.Messages[1].Content)
}

func TestOpenAIFailureIsCollaboratorError(t *testing.T) {
	t.Setenv(testKeyEnv, "test-key")
	srv, _ := chatServer(t, http.StatusInternalServerError, "")

	g, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKeyEnv: testKeyEnv})
	require.NoError(t, err)

	_, err = Guard(g, time.Second).Answer(testContext(t), "q", results)
	assert.ErrorIs(t, err, domain.ErrCollaborator)
}

func TestOpenAIRequiresKey(t *testing.T) {
	t.Setenv(testKeyEnv, "")
	_, err := NewOpenAI(OpenAIConfig{APIKeyEnv: testKeyEnv})
	assert.ErrorIs(t, err, domain.ErrConfig)
}

type slowGenerator struct{}

func (slowGenerator) Answer(ctx context.Context, _ string, _ []domain.Result) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGuardTimeout(t *testing.T) {
	_, err := Guard(slowGenerator{}, 10*time.Millisecond).Answer(testContext(t), "q", nil)
	assert.ErrorIs(t, err, domain.ErrCollaborator)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

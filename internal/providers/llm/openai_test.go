package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func newTestOpenAI(t *testing.T, rt roundTripFunc) *OpenAIClient {
	t.Helper()
	c, err := NewOpenAIClient(OpenAIOptions{
		APIKey:     "test-key",
		Model:      "gpt-4o",
		HTTPClient: clientWith(rt),
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	return c
}

func TestOpenAIGenerateParsesResponse(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	var payload openAIChatRequest
	c := newTestOpenAI(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		return jsonResponse(200, `{
			"model": "gpt-4o-2024-08-06",
			"choices": [{"message": {"content": "hello world"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7}
		}`), nil
	})

	res, err := c.Generate(context.Background(), GenerateRequest{
		System:     "be brief",
		Prompt:     "say hello",
		MaxTokens:  128,
		JSONOutput: true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "hello world" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Model != "gpt-4o-2024-08-06" {
		t.Fatalf("model = %q", res.Model)
	}
	if res.Usage.PromptTokens != 12 || res.Usage.CompletionTokens != 7 {
		t.Fatalf("usage = %+v", res.Usage)
	}

	if got := captured.Header.Get("Authorization"); got != "Bearer test-key" {
		t.Fatalf("auth header = %q", got)
	}
	if captured.URL.Path != "/v1/chat/completions" {
		t.Fatalf("path = %q", captured.URL.Path)
	}
	if payload.ResponseFormat == nil || payload.ResponseFormat.Type != "json_object" {
		t.Fatalf("json output not requested: %+v", payload.ResponseFormat)
	}
	if len(payload.Messages) != 2 || payload.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", payload.Messages)
	}
}

func TestOpenAIGenerateClassifiesStatusCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   ErrorKind
	}{
		{429, ErrKindRateLimited},
		{401, ErrKindAuth},
		{500, ErrKindTransient},
		{400, ErrKindBadRequest},
	}
	for _, tc := range cases {
		tc := tc
		c := newTestOpenAI(t, func(*http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, `{"error": {"message": "nope"}}`), nil
		})
		_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("status %d: expected *Error, got %v", tc.status, err)
		}
		if perr.Kind != tc.want {
			t.Errorf("status %d: kind = %s, want %s", tc.status, perr.Kind, tc.want)
		}
		if perr.Message != "nope" {
			t.Errorf("status %d: provider message lost, got %q", tc.status, perr.Message)
		}
	}
}

func TestOpenAIGenerateEmptyChoicesIsTransient(t *testing.T) {
	t.Parallel()

	c := newTestOpenAI(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"choices": []}`), nil
	})
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != ErrKindTransient {
		t.Fatalf("expected transient error for empty choices, got %v", err)
	}
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := NewOpenAIClient(OpenAIOptions{}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

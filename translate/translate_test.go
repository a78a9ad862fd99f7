package translate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		StoreType:   "sports equipment and accessories",
		SourceLang:  "Russian",
		TargetLang:  "Ukrainian",
		Temperature: DefaultTemperature,
	}
}

// chatReply renders a chat-completion body whose first choice carries content.
func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
	return body
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	prov := DefaultProvider()
	prov.BaseURL = srv.URL + "/v1/"
	prov.APIKey = "sk-test"
	prov.Timeout = 5 * time.Second
	return NewClient(prov, testOptions())
}

// ---------------------------------------------------------------------------
// Prompt and messages
// ---------------------------------------------------------------------------

func TestResolvedPrompt(t *testing.T) {
	got := testOptions().ResolvedPrompt()
	want := "You are a translation assistant for a sports equipment and accessories store. " +
		"Translate the following JSON from Russian to Ukrainian. " +
		"Preserve JSON structure; translate only values; leave empty fields empty."
	assert.Equal(t, want, got)

	custom := testOptions()
	custom.SystemPrompt = "{{sourceLang}} => {{targetLang}} for {{storeType}}"
	assert.Equal(t, "Russian => Ukrainian for sports equipment and accessories", custom.ResolvedPrompt())
}

func TestMessagesKeepHTMLAndUnicode(t *testing.T) {
	msgs, err := Messages(testOptions(), Fields{
		"name":        "Мячи",
		"description": `<p class="lead">Мячи & аксессуары</p>`,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, `{"description":"<p class=\"lead\">Мячи & аксессуары</p>","name":"Мячи"}`, msgs[1].Content)
}

func TestFieldsKeysSorted(t *testing.T) {
	f := Fields{"meta_title": "a", "description": "b", "name": "c"}
	assert.Equal(t, []string{"description", "meta_title", "name"}, f.Keys())
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestClientTranslate(t *testing.T) {
	var gotReq chatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))

		w.Write(chatReply(t, `{"name":"Мʼячі","meta_title":"Купити мʼячі"}`))
	})

	got, err := client.Translate(context.Background(), Fields{"name": "Мячи", "meta_title": "Купить мячи"})
	require.NoError(t, err)
	assert.Equal(t, Fields{"name": "Мʼячі", "meta_title": "Купити мʼячі"}, got)

	assert.Equal(t, "gpt-4o", gotReq.Model)
	assert.InDelta(t, 0.2, gotReq.Temperature, 1e-9)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, testOptions().ResolvedPrompt(), gotReq.Messages[0].Content)

	var sent Fields
	require.NoError(t, json.Unmarshal([]byte(gotReq.Messages[1].Content), &sent))
	assert.Equal(t, Fields{"name": "Мячи", "meta_title": "Купить мячи"}, sent)
}

func TestClientTranslateErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		invalid bool
		match   string
	}{
		{name: "content is not json", status: 200, body: string(chatReply(t, "Извините, не могу")), invalid: true},
		{name: "content is json array", status: 200, body: string(chatReply(t, `["a"]`)), invalid: true},
		{name: "no choices", status: 200, body: `{"choices":[]}`, invalid: true},
		{name: "body is not json", status: 200, body: `<html>gateway</html>`, invalid: true},
		{name: "api error", status: 401, body: `{"error":{"message":"Incorrect API key provided"}}`, match: "Incorrect API key"},
		{name: "server error", status: 502, body: `bad gateway`, match: "status 502"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})

			_, err := client.Translate(context.Background(), Fields{"name": "Мячи"})
			require.Error(t, err)
			if tc.invalid {
				assert.True(t, errors.Is(err, ErrInvalidResponse), "err = %v", err)
			}
			if tc.match != "" {
				assert.Contains(t, err.Error(), tc.match)
			}
		})
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	prov := DefaultProvider()
	prov.BaseURL = srv.URL
	client := NewClient(prov, testOptions())

	_, err := client.Translate(context.Background(), Fields{"name": "Мячи"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestSetHTTPClientRestoresDefault(t *testing.T) {
	client := NewClient(DefaultProvider(), testOptions())
	client.SetHTTPClient(nil)

	hc, ok := client.http.(*http.Client)
	require.True(t, ok, "expected *http.Client, got %T", client.http)
	assert.Equal(t, 120*time.Second, hc.Timeout)
}

func TestEndpoint(t *testing.T) {
	for _, base := range []string{"https://api.openai.com/v1", "https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"} {
		c := &Client{prov: Provider{BaseURL: base}}
		assert.Equal(t, "https://api.openai.com/v1/chat/completions", c.endpoint(), base)
	}
}

// ---------------------------------------------------------------------------
// ParseFields
// ---------------------------------------------------------------------------

func TestParseFields(t *testing.T) {
	t.Run("markdown fenced", func(t *testing.T) {
		got, err := ParseFields("```json\n{\"name\": \"Намети\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, Fields{"name": "Намети"}, got)
	})

	t.Run("code fence inside a value", func(t *testing.T) {
		content := "{\"description\":\"<p>Use ```json {\\\"a\\\":1}``` blocks</p>\",\"name\":\"Ок\"}"
		got, err := ParseFields(content)
		require.NoError(t, err)
		assert.Equal(t, Fields{"description": "<p>Use ```json {\"a\":1}``` blocks</p>", "name": "Ок"}, got)
	})

	t.Run("wrapping fence with a fence inside a value", func(t *testing.T) {
		content := "```json\n{\"description\": \"see ```code```\"}\n```"
		got, err := ParseFields(content)
		require.NoError(t, err)
		assert.Equal(t, Fields{"description": "see ```code```"}, got)
	})

	t.Run("surrounding prose", func(t *testing.T) {
		got, err := ParseFields(`Here you go: {"name": "Намети"} Enjoy!`)
		require.NoError(t, err)
		assert.Equal(t, Fields{"name": "Намети"}, got)
	})

	t.Run("null is absent and scalars become text", func(t *testing.T) {
		got, err := ParseFields(`{"name": null, "meta_title": 2024, "meta_h1": true}`)
		require.NoError(t, err)
		_, hasName := got["name"]
		assert.False(t, hasName)
		assert.Equal(t, "2024", got["meta_title"])
		assert.Equal(t, "true", got["meta_h1"])
	})

	t.Run("nested value is invalid", func(t *testing.T) {
		_, err := ParseFields(`{"name": {"uk": "Намети"}}`)
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("json null is invalid", func(t *testing.T) {
		_, err := ParseFields("null")
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("empty content is invalid", func(t *testing.T) {
		_, err := ParseFields("")
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})
}

func TestTruncateIsRuneSafe(t *testing.T) {
	got := truncate("Мячи и сетки", 4)
	assert.Equal(t, "Мячи...", got)
	assert.False(t, strings.ContainsRune(got, '�'))
	assert.Equal(t, "ok", truncate("ok", 10))
}

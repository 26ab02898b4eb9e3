package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidateResponse(text string) string {
	quoted, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"parts":[{"text":` + string(quoted) + `}]}}]}`
}

func TestClient_GenerateText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, candidateResponse("BUY at support"))
	}))
	defer srv.Close()

	client := New("test-key", "gemini-2.0-flash", srv.URL, zerolog.New(nil).Level(zerolog.Disabled))

	reply, err := client.GenerateText(context.Background(), "analyze this")
	require.NoError(t, err)
	assert.Equal(t, "BUY at support", reply)
	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)

	contents := gotBody["contents"].([]interface{})
	parts := contents[0].(map[string]interface{})["parts"].([]interface{})
	require.Len(t, parts, 1)
	assert.Equal(t, "analyze this", parts[0].(map[string]interface{})["text"])
}

func TestClient_AnalyzeImage(t *testing.T) {
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		io.WriteString(w, candidateResponse(`{"verdict":"SELL"}`))
	}))
	defer srv.Close()

	client := New("test-key", "gemini-2.0-flash", srv.URL, zerolog.New(nil).Level(zerolog.Disabled))

	reply, err := client.AnalyzeImage(context.Background(), "scan", []byte{0x89, 0x50}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, `{"verdict":"SELL"}`, reply)

	contents := gotBody["contents"].([]interface{})
	parts := contents[0].(map[string]interface{})["parts"].([]interface{})
	require.Len(t, parts, 2)
	inline := parts[1].(map[string]interface{})["inline_data"].(map[string]interface{})
	assert.Equal(t, "image/png", inline["mime_type"])
	assert.Equal(t, "iVA=", inline["data"])
}

func TestClient_AnalyzeImage_EmptyPayload(t *testing.T) {
	client := New("test-key", "m", "http://unused", zerolog.New(nil).Level(zerolog.Disabled))
	_, err := client.AnalyzeImage(context.Background(), "scan", nil, "image/png")
	assert.ErrorContains(t, err, "empty image")
}

func TestClient_MissingAPIKey(t *testing.T) {
	client := New("", "m", "http://unused", zerolog.New(nil).Level(zerolog.Disabled))
	_, err := client.GenerateText(context.Background(), "x")
	assert.ErrorContains(t, err, "not configured")
}

func TestClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New("test-key", "m", srv.URL, zerolog.New(nil).Level(zerolog.Disabled))
	_, err := client.GenerateText(context.Background(), "x")
	assert.ErrorContains(t, err, "429")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestClient_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	client := New("test-key", "m", srv.URL, zerolog.New(nil).Level(zerolog.Disabled))
	_, err := client.GenerateText(context.Background(), "x")
	assert.ErrorContains(t, err, "no candidates")
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around object", "Sure! {\"a\":1} Hope that helps.", `{"a":1}`},
		{"no braces", "no json here", "no json here"},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.input))
		})
	}
}

package llamacpp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newServer(t *testing.T, status int, content interface{}) (*httptest.Server, *ChatCompletionRequest) {
	t.Helper()
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestAnalyzeImage(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"malignancy": 0.25, "finding": "benign calcifications"}`)
	c, _ := NewClient(srv.URL + "/")

	res, err := c.AnalyzeImage(context.Background(), "qwen2-vl", "grade", "aGVsbG8=")
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if res.Malignancy != 0.25 {
		t.Errorf("Expected malignancy 0.25, got %f", res.Malignancy)
	}

	parts, ok := got.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %#v", got.Messages[0].Content)
	}
	img := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(img, "data:image/jpeg;base64,") {
		t.Errorf("Unexpected image url %q", img)
	}
}

func TestSimpleQueryContentParts(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, []map[string]string{{"type": "text", "text": "two breasts"}})
	c, _ := NewClient(srv.URL)

	text, err := c.SimpleQuery(context.Background(), "m", "what is this", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "two breasts" {
		t.Errorf("Unexpected reply %q", text)
	}
}

func TestSimpleQueryNoText(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, []map[string]string{{"type": "image_url"}})
	c, _ := NewClient(srv.URL)

	text, err := c.SimpleQuery(context.Background(), "m", "what is this", "")
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("Expected ErrNoContent, got text=%q err=%v", text, err)
	}
	if _, err := c.AnalyzeImage(context.Background(), "m", "grade", ""); !errors.Is(err, ErrNoContent) {
		t.Errorf("Expected ErrNoContent from AnalyzeImage, got %v", err)
	}
}

func TestServerError(t *testing.T) {
	srv, _ := newServer(t, http.StatusInternalServerError, "boom")
	c, _ := NewClient(srv.URL)

	if _, err := c.AnalyzeImage(context.Background(), "m", "p", ""); err == nil {
		t.Error("Expected error for HTTP 500")
	}
}

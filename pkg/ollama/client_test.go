package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientInvalidURL(t *testing.T) {
	if _, err := NewClient("not a url"); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestAnalyzeImage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "llava",
			"message": map[string]any{"role": "assistant", "content": `{"malignancy": 0.7, "finding": "mass", "tags": ["mass"]}`},
			"done":    true,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	img := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	res, err := c.AnalyzeImage(context.Background(), "llava", "grade this", img)
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if res.Malignancy != 0.7 || res.Finding != "mass" {
		t.Errorf("Unexpected assessment %+v", res)
	}
	if got["model"] != "llava" {
		t.Errorf("Expected model llava in request, got %v", got["model"])
	}
}

func TestAnalyzeImageBadBase64(t *testing.T) {
	c, err := NewClient("http://localhost:11434")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.AnalyzeImage(context.Background(), "llava", "p", "%%%"); err == nil {
		t.Error("Expected base64 error")
	}
}

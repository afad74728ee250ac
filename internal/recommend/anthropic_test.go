package recommend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/goccy/go-json"

	"gosyncmovies/backend"
)

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"id": 1, "title": "Heat", "reason": "r"}]`, 1, false},
		{"code fence", "Here you go:\n```json\n[{\"id\": 1, \"title\": \"Heat\", \"reason\": \"r\"}]\n```", 1, false},
		{"drops invalid entries", `[{"id": 0, "title": "No id"}, {"id": 2, "title": "  "}, {"id": 3, "title": "Ok", "reason": "r"}]`, 1, false},
		{"empty array", `[]`, 0, false},
		{"no array", "I cannot help with that.", 0, true},
		{"broken json", `[{"id": 1,]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCandidates(tt.reply)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("got %d candidates, want %d", len(got), tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(Request{
		Count: 3,
		Liked: []backend.MovieRecord{{ID: 949, Title: "Heat", ReleaseDate: "1995-12-15"}},
	})
	if !strings.Contains(prompt, "Suggest 3 movies") {
		t.Errorf("prompt missing count: %q", prompt)
	}
	if !strings.Contains(prompt, "Heat (1995) [id 949]") {
		t.Errorf("prompt missing liked title: %q", prompt)
	}
	if strings.Contains(prompt, "not interested") {
		t.Errorf("empty sections should be omitted: %q", prompt)
	}
}

func TestAnthropicRecommend(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Api-Key") != "sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		reply := `[{"id": 1422, "title": "The Departed", "releaseDate": "2006-10-05", "reason": "Crime epic with a stacked cast"}]`
		resp := map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-sonnet-4-5",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": reply}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 20},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	rec := NewAnthropic("sk-test", "claude-sonnet-4-5", 512,
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0))

	got, err := rec.Recommend(context.Background(), Request{Count: 1})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(got) != 1 || got[0].Movie.ID != 1422 || got[0].Reason == "" {
		t.Fatalf("candidates = %+v", got)
	}
	if got[0].Movie.ReleaseDate != "2006-10-05" {
		t.Errorf("ReleaseDate = %q", got[0].Movie.ReleaseDate)
	}
	if gotBody["model"] != "claude-sonnet-4-5" {
		t.Errorf("request model = %v", gotBody["model"])
	}
	if mt, _ := gotBody["max_tokens"].(float64); mt != 512 {
		t.Errorf("request max_tokens = %v", gotBody["max_tokens"])
	}
}

func TestAnthropicRecommendSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`)
	}))
	defer srv.Close()

	rec := NewAnthropic("sk-test", "nope", 0, option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	if _, err := rec.Recommend(context.Background(), Request{Count: 1}); err == nil {
		t.Error("expected API error")
	}
}

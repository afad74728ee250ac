package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/goccy/go-json"

	"gosyncmovies/backend"
)

const systemPrompt = `You recommend movies. Reply with a JSON array only, no prose.
Each element has the fields "id" (the TMDB movie id), "title", "releaseDate"
(YYYY-MM-DD), "overview", "posterUrl" and "reason" (one sentence addressed to
the user explaining the pick). Never suggest a title the user has already seen
or marked as not interested.`

// AnthropicRecommender asks a Claude model for suggestions.
type AnthropicRecommender struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropic creates a recommender. An empty apiKey falls back to the
// ANTHROPIC_API_KEY environment variable.
func NewAnthropic(apiKey, model string, maxTokens int, opts ...option.RequestOption) *AnthropicRecommender {
	if apiKey != "" {
		opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicRecommender{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}
}

// Recommend implements Recommender.
func (a *AnthropicRecommender) Recommend(ctx context.Context, req Request) ([]Candidate, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseCandidates(text.String())
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest %d movies.\n", req.Count)
	writeTitles(&b, "Movies I liked", req.Liked)
	writeTitles(&b, "Movies I have seen", req.Seen)
	writeTitles(&b, "Movies I am not interested in", req.NotInterested)
	return b.String()
}

func writeTitles(b *strings.Builder, heading string, recs []backend.MovieRecord) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, rec := range recs {
		year := ""
		if len(rec.ReleaseDate) >= 4 {
			year = " (" + rec.ReleaseDate[:4] + ")"
		}
		fmt.Fprintf(b, "- %s%s [id %d]\n", rec.Title, year, rec.ID)
	}
}

type suggestion struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"releaseDate"`
	Overview    string `json:"overview"`
	PosterURL   string `json:"posterUrl"`
	Reason      string `json:"reason"`
}

// parseCandidates extracts the JSON array from a model reply, tolerating
// surrounding prose or code fences.
func parseCandidates(reply string) ([]Candidate, error) {
	start := strings.IndexByte(reply, '[')
	end := strings.LastIndexByte(reply, ']')
	if start < 0 || end < start {
		return nil, errors.New("model reply contains no JSON array")
	}

	var items []suggestion
	if err := json.Unmarshal([]byte(reply[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("failed to decode model reply: %w", err)
	}

	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		if it.ID <= 0 || strings.TrimSpace(it.Title) == "" {
			continue
		}
		out = append(out, Candidate{
			Movie: backend.MovieRecord{
				ID:          it.ID,
				Title:       strings.TrimSpace(it.Title),
				ReleaseDate: it.ReleaseDate,
				Overview:    it.Overview,
				PosterURL:   it.PosterURL,
			},
			Reason: strings.TrimSpace(it.Reason),
		})
	}
	return out, nil
}

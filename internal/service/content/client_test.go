package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
)

func geminiReply(text string) string {
	body := map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": text}},
			},
		}},
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.GeminiConfig{APIKey: "test-key", Model: "gemini-2.0-flash", APIBase: srv.URL}
	contentCfg := &config.ContentConfig{
		Tone:     "professional",
		Length:   "medium",
		Topics:   []string{"AI"},
		Hashtags: []string{"AI", "Tech", "Engineering", "Leadership"},
	}
	return NewClient(cfg, contentCfg, zap.NewNop())
}

func TestGeneratePostParsesJSONReply(t *testing.T) {
	reply := "```json\n" + `{"title": "Shipping faster", "text": "Here is how we ship.", "url": "https://example.com/post"}` + "\n```"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		fmt.Fprint(w, geminiReply(reply))
	})

	item, err := client.GeneratePost(context.Background(), "AI")
	require.NoError(t, err)

	assert.Equal(t, "AI", item.Topic)
	assert.Equal(t, "Shipping faster", item.Title)
	assert.True(t, strings.HasPrefix(item.Body, "Here is how we ship."))
	assert.Contains(t, item.Body, "#", "hashtags are appended to the body")
	assert.Equal(t, "https://example.com/post", item.URL)
	assert.False(t, item.GeneratedAt.IsZero())
}

func TestGeneratePostFallsBackToRawText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, geminiReply("Just a plain reply with no JSON."))
	})

	item, err := client.GeneratePost(context.Background(), "AI")
	require.NoError(t, err)
	assert.Contains(t, item.Body, "Just a plain reply with no JSON.")
}

func TestGenerateEmptyResponseIsGenerationError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": []}`)
	})

	_, err := client.GeneratePost(context.Background(), "AI")
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Contains(t, genErr.Reason, "empty response")
}

func TestGenerateUpstreamErrorIsGenerationError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := client.GeneratePost(context.Background(), "AI")
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Contains(t, genErr.Reason, "429")
}

func TestGenerateArticleParsesJSONReply(t *testing.T) {
	reply := "```json\n" + `{"title": "Why latency budgets work", "content": "Long-form body here.", "tags": ["engineering", "sre"]}` + "\n```"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, geminiReply(reply))
	})

	article, err := client.GenerateArticle(context.Background(), "latency")
	require.NoError(t, err)

	assert.Equal(t, "latency", article.Topic)
	assert.Equal(t, "Why latency budgets work", article.Title)
	assert.Equal(t, "Long-form body here.", article.Content)
	assert.Equal(t, []string{"engineering", "sre"}, article.Tags)
	assert.False(t, article.GeneratedAt.IsZero())
}

func TestParseArticleResponseFallsBackToRawText(t *testing.T) {
	art := parseArticleResponse("A headline\nthen several paragraphs")
	assert.Equal(t, "A headline", art.Title)
	assert.Contains(t, art.Content, "then several paragraphs")
}

func TestExpandTopicsStripsListMarkers(t *testing.T) {
	reply := "1. AI agents in code review\n2. Latency budgets\n- Shadow deployments\n\n* On-call rotations\n5. Postmortem culture\n6. This one is dropped"
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, geminiReply(reply))
	})

	topics, err := client.ExpandTopics(context.Background(), "engineering")
	require.NoError(t, err)

	require.Len(t, topics, 5)
	assert.Equal(t, "AI agents in code review", topics[0])
	assert.Equal(t, "Shadow deployments", topics[2])
	assert.Equal(t, "On-call rotations", topics[3])
}

func TestGenerateCommentTruncates(t *testing.T) {
	long := strings.Repeat("insightful ", 100)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, geminiReply(long))
	})

	comment, err := client.GenerateComment(context.Background(), models.NetworkPost{Text: "post"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(comment)), 600)
}

func TestGenerateConnectionNoteRespectsPlatformLimit(t *testing.T) {
	long := strings.Repeat("hello ", 100)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, geminiReply(long))
	})

	note, err := client.GenerateConnectionNote(context.Background(), models.Prospect{Name: "Ann"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(note)), 300)
}

func TestParsePostResponse(t *testing.T) {
	post := parsePostResponse(`{"title": "T", "text": "B"}`)
	assert.Equal(t, "T", post.Title)
	assert.Equal(t, "B", post.Text)

	fallback := parsePostResponse("First line\nrest of the body")
	assert.Equal(t, "First line", fallback.Title)
	assert.Contains(t, fallback.Text, "rest of the body")
}

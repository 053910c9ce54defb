package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/pkg/util"
)

// GenerationError reports an upstream content-generation failure. The caller
// treats it as a failed action, not a fatal process error; retrying is the
// next trigger's job.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("content generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("content generation failed: %s", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Client talks to the Gemini generateContent API.
type Client struct {
	cfg     *config.GeminiConfig
	content *config.ContentConfig
	logger  *zap.Logger
	client  *http.Client
	rand    *rand.Rand
}

func NewClient(cfg *config.GeminiConfig, contentCfg *config.ContentConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:     cfg,
		content: contentCfg,
		logger:  logger,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	var body generateRequest
	body.Contents = make([]struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}, 1)
	body.Contents[0].Parts = []struct {
		Text string `json:"text"`
	}{{Text: prompt}}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", &GenerationError{Reason: "failed to marshal request", Err: err}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.APIBase, c.cfg.Model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", &GenerationError{Reason: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &GenerationError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &GenerationError{Reason: fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(respBody))}
	}

	var response generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", &GenerationError{Reason: "failed to decode response", Err: err}
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", &GenerationError{Reason: "empty response"}
	}
	text := strings.TrimSpace(response.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", &GenerationError{Reason: "empty response"}
	}
	return text, nil
}

// generatedPost mirrors the JSON structure the post prompt asks the model
// to return.
type generatedPost struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	Description string `json:"description"`
	URL         string `json:"url"`
	ImagePrompt string `json:"image_prompt"`
}

// GeneratePost creates a full post for the given topic. The result is never
// edited afterwards; a bad post is regenerated.
func (c *Client) GeneratePost(ctx context.Context, topic string) (*models.ContentItem, error) {
	hook := hookStyles[c.rand.Intn(len(hookStyles))]
	prompt := postPrompt(topic, c.content.Tone, c.content.Length, hook)

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	post := parsePostResponse(raw)
	if post.Text == "" {
		return nil, &GenerationError{Reason: "generated post has no body"}
	}

	body := post.Text
	if tags := c.pickHashtags(); len(tags) > 0 {
		body = body + "\n\n" + strings.Join(tags, " ")
	}

	item := &models.ContentItem{
		Topic:       topic,
		Title:       util.Truncate(post.Title, 120),
		Body:        body,
		URL:         post.URL,
		ImagePrompt: post.ImagePrompt,
		GeneratedAt: time.Now().UTC(),
	}

	c.logger.Info("Generated post content",
		zap.String("topic", topic),
		zap.String("title", item.Title),
		zap.Int("body_len", len(item.Body)))

	return item, nil
}

// generatedArticle mirrors the JSON structure the article prompt asks the
// model to return.
type generatedArticle struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// GenerateArticle creates a long-form article for the given topic.
func (c *Client) GenerateArticle(ctx context.Context, topic string) (*models.Article, error) {
	raw, err := c.generate(ctx, articlePrompt(topic, c.content.Tone))
	if err != nil {
		return nil, err
	}

	art := parseArticleResponse(raw)
	if art.Content == "" {
		return nil, &GenerationError{Reason: "generated article has no content"}
	}

	article := &models.Article{
		Topic:       topic,
		Title:       util.Truncate(art.Title, 150),
		Content:     art.Content,
		Tags:        art.Tags,
		GeneratedAt: time.Now().UTC(),
	}

	c.logger.Info("Generated article",
		zap.String("topic", topic),
		zap.String("title", article.Title),
		zap.Int("content_len", len(article.Content)))

	return article, nil
}

// ExpandTopics turns a base topic into five sharper candidates.
func (c *Client) ExpandTopics(ctx context.Context, base string) ([]string, error) {
	theme := themes[c.rand.Intn(len(themes))]
	raw, err := c.generate(ctx, expandPrompt(base, theme))
	if err != nil {
		return nil, err
	}

	var topics []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.-*• ")
		if line != "" {
			topics = append(topics, line)
		}
		if len(topics) == 5 {
			break
		}
	}
	if len(topics) == 0 {
		return nil, &GenerationError{Reason: "no topics in response"}
	}
	return topics, nil
}

// GenerateComment writes a short, relevant comment for a network post.
func (c *Client) GenerateComment(ctx context.Context, post models.NetworkPost) (string, error) {
	raw, err := c.generate(ctx, commentPrompt(post))
	if err != nil {
		return "", err
	}
	return util.Truncate(raw, 600), nil
}

// GenerateConnectionNote writes a personalized connection request message.
// LinkedIn caps invitation notes at 300 characters.
func (c *Client) GenerateConnectionNote(ctx context.Context, prospect models.Prospect) (string, error) {
	raw, err := c.generate(ctx, connectionPrompt(prospect))
	if err != nil {
		return "", err
	}
	return util.Truncate(raw, 300), nil
}

// parsePostResponse decodes the model's JSON reply, tolerating markdown
// fences and falling back to treating the whole reply as the body.
func parsePostResponse(raw string) generatedPost {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var post generatedPost
	if err := json.Unmarshal([]byte(cleaned), &post); err == nil && post.Text != "" {
		return post
	}

	return generatedPost{
		Title: util.FirstLine(raw),
		Text:  raw,
	}
}

// parseArticleResponse is the article counterpart of parsePostResponse:
// fence-tolerant JSON with a raw-text fallback.
func parseArticleResponse(raw string) generatedArticle {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var art generatedArticle
	if err := json.Unmarshal([]byte(cleaned), &art); err == nil && art.Content != "" {
		return art
	}

	return generatedArticle{
		Title:   util.FirstLine(raw),
		Content: raw,
	}
}

func (c *Client) pickHashtags() []string {
	pool := c.content.Hashtags
	if len(pool) == 0 {
		return nil
	}
	count := 3 + c.rand.Intn(3)
	if count > len(pool) {
		count = len(pool)
	}
	picked := make([]string, 0, count)
	for _, i := range c.rand.Perm(len(pool))[:count] {
		tag := pool[i]
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		picked = append(picked, tag)
	}
	return picked
}

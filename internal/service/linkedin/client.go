package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/models"
)

// Client wraps the LinkedIn v2 REST API. The bearer token is supplied
// out-of-band via configuration; the client never acquires or refreshes it.
type Client struct {
	cfg    *config.LinkedInConfig
	logger *zap.Logger
	client *http.Client

	userID string
}

func NewClient(cfg *config.LinkedInConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	req.Header.Set("LinkedIn-Version", c.cfg.Version)
	return req, nil
}

// do executes the request and maps failures onto the error taxonomy:
// 401 is an AuthError, everything else (network errors included) is
// transient and eligible for retry on the next trigger.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &AuthError{Status: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &TransientError{Status: resp.StatusCode, Message: string(body)}
	}
	return resp, nil
}

type userinfoResponse struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ValidateToken makes a test call against /userinfo and returns the profile
// summary. An AuthError here means the operator has to mint a new token.
func (c *Client) ValidateToken(ctx context.Context) (*models.Profile, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/userinfo", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info userinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to decode userinfo: %w", err)}
	}

	c.userID = info.Sub
	return &models.Profile{ID: info.Sub, Name: info.Name, Email: info.Email}, nil
}

func (c *Client) authorURN(ctx context.Context) (string, error) {
	if c.userID == "" {
		if _, err := c.ValidateToken(ctx); err != nil {
			return "", err
		}
	}
	return "urn:li:person:" + c.userID, nil
}

// Publish submits a content item as a UGC post and returns the platform's
// durable post id. A post without a confirmed id is never reported as
// succeeded.
func (c *Client) Publish(ctx context.Context, item *models.ContentItem) (string, error) {
	author, err := c.authorURN(ctx)
	if err != nil {
		return "", err
	}

	shareContent := map[string]any{
		"shareCommentary": map[string]any{
			"text": item.Body,
		},
		"shareMediaCategory": "NONE",
	}
	if item.URL != "" {
		shareContent["shareMediaCategory"] = "ARTICLE"
		shareContent["media"] = []map[string]any{{
			"status":      "READY",
			"originalUrl": item.URL,
			"title":       map[string]any{"text": item.Title},
		}}
	}

	postData := map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/ugcPosts", postData)
	if err != nil {
		return "", err
	}

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	postID := resp.Header.Get("x-restli-id")
	if postID == "" {
		return "", &TransientError{Status: resp.StatusCode, Message: "response missing post id"}
	}

	c.logger.Info("Published post",
		zap.String("post_id", postID),
		zap.String("topic", item.Topic))
	return postID, nil
}

type feedResponse struct {
	Elements []struct {
		ID    string `json:"id"`
		Actor struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Title   string `json:"title"`
			Company string `json:"company"`
		} `json:"actor"`
		Commentary struct {
			Text string `json:"text"`
		} `json:"commentary"`
		Created struct {
			Time int64 `json:"time"`
		} `json:"created"`
	} `json:"elements"`
}

// FetchRecentNetworkPosts returns up to limit recent posts from the
// network feed.
func (c *Client) FetchRecentNetworkPosts(ctx context.Context, limit int) ([]models.NetworkPost, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/networkUpdates?count=%d", limit), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to decode feed: %w", err)}
	}

	posts := make([]models.NetworkPost, 0, len(feed.Elements))
	for _, el := range feed.Elements {
		posts = append(posts, models.NetworkPost{
			ID:            el.ID,
			AuthorID:      el.Actor.ID,
			AuthorName:    el.Actor.Name,
			AuthorTitle:   el.Actor.Title,
			AuthorCompany: el.Actor.Company,
			Text:          el.Commentary.Text,
			CreatedAt:     time.UnixMilli(el.Created.Time).UTC(),
		})
	}
	return posts, nil
}

// LikePost adds a like reaction to the given post.
func (c *Client) LikePost(ctx context.Context, postID string) error {
	actor, err := c.authorURN(ctx)
	if err != nil {
		return err
	}

	body := map[string]any{
		"actor":  actor,
		"object": postID,
	}

	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/socialActions/%s/likes", postID), body)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Info("Liked post", zap.String("post_id", postID))
	return nil
}

// PostComment publishes a comment on the given post.
func (c *Client) PostComment(ctx context.Context, postID, text string) error {
	actor, err := c.authorURN(ctx)
	if err != nil {
		return err
	}

	body := map[string]any{
		"actor": actor,
		"message": map[string]any{
			"text": text,
		},
	}

	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/socialActions/%s/comments", postID), body)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Info("Posted comment", zap.String("post_id", postID))
	return nil
}

// PublishArticle submits a long-form article as a UGC post: the title leads
// the body and the tags trail it as hashtags.
func (c *Client) PublishArticle(ctx context.Context, article *models.Article) (string, error) {
	var b strings.Builder
	if article.Title != "" {
		b.WriteString(article.Title)
		b.WriteString("\n\n")
	}
	b.WriteString(article.Content)
	if len(article.Tags) > 0 {
		b.WriteString("\n\n")
		for i, tag := range article.Tags {
			if i > 0 {
				b.WriteString(" ")
			}
			if !strings.HasPrefix(tag, "#") {
				b.WriteString("#")
			}
			b.WriteString(tag)
		}
	}

	item := &models.ContentItem{
		Topic: article.Topic,
		Title: article.Title,
		Body:  b.String(),
	}
	return c.Publish(ctx, item)
}

// SendConnectionRequest sends an invitation with a personalized note.
func (c *Client) SendConnectionRequest(ctx context.Context, prospectID, message string) error {
	actor, err := c.authorURN(ctx)
	if err != nil {
		return err
	}

	body := map[string]any{
		"invitee": map[string]any{
			"com.linkedin.voyager.growth.invitation.InviteeProfile": map[string]any{
				"profileId": prospectID,
			},
		},
		"inviter": actor,
		"message": message,
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/invitations", body)
	if err != nil {
		return err
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Info("Sent connection request", zap.String("prospect_id", prospectID))
	return nil
}

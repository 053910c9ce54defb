package models

import "time"

// ContentItem is a generated piece of content. It is owned by the
// orchestrator until handed to the poster and never mutated after creation;
// a bad item is regenerated, not edited.
type ContentItem struct {
	Topic       string    `json:"topic"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url,omitempty"`
	ImagePrompt string    `json:"image_prompt,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Article is a long-form generated piece. It publishes through the same
// UGC surface as regular posts, with the tags rendered as hashtags.
type Article struct {
	Topic       string    `json:"topic"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Tags        []string  `json:"tags,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NetworkPost is a recent post fetched from the network feed, the input to
// an engagement action.
type NetworkPost struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	AuthorName    string    `json:"author_name"`
	AuthorTitle   string    `json:"author_title"`
	AuthorCompany string    `json:"author_company"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
}

// Prospect is read-only reference data about a potential connection,
// supplied externally and never mutated by the orchestrator.
type Prospect struct {
	ID                string `yaml:"id" json:"id"`
	Name              string `yaml:"name" json:"name"`
	Title             string `yaml:"title" json:"title"`
	Company           string `yaml:"company" json:"company"`
	MutualConnections int    `yaml:"mutual_connections" json:"mutual_connections"`
}

// Profile is the summary returned by token validation.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

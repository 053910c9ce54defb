package content

import (
	"fmt"

	"github.com/cadencehq/cadence/internal/models"
)

// themes steer topic expansion toward angles that perform well; hookStyles
// vary the opening line so posts don't all read the same.
var themes = []string{
	"personal growth",
	"industry insights",
	"thought leadership",
	"tactical value",
	"relatable content",
}

var hookStyles = []string{
	"Curious: open with a question the reader can't ignore",
	"Bold: open by challenging what everyone assumes about the topic",
	"Relatable: open with a 'we've all been there' moment",
	"Contrarian: open by disagreeing with the conventional wisdom",
	"Story: open with a specific mistake and what it taught you",
	"Metric: open with a single concrete number or result",
	"Revelation: open with the thing nobody says out loud about the topic",
}

func postPrompt(topic, tone, length, hook string) string {
	return fmt.Sprintf(`Write a professional social media post about: %s

Tone: %s
Length: %s
Hook style: %s

Structure:
1. A compelling opening (2-3 lines, impossible to scroll past)
2. The main problem or opportunity, with a surprising fact or personal experience (2-3 lines)
3. 2-3 key insights with specific examples and practical takeaways
4. End with a call to action or an engaging question

Format requirements:
- Short paragraphs with line breaks between sections
- Skimmable, plain text only (no markdown)
- Personal, conversational voice

Return the response in JSON format with this structure:
{
  "title": "Post title, under 100 characters",
  "text": "Main post content",
  "description": "One-line description",
  "url": "",
  "image_prompt": "Optional one-line description of a fitting image"
}

Return only the JSON, no additional text.`, topic, tone, length, hook)
}

func articlePrompt(topic, tone string) string {
	return fmt.Sprintf(`Write a long-form professional article about: %s

Tone: %s
Length: 600-900 words

Structure:
1. A headline that promises a concrete takeaway
2. An opening that frames the problem with a specific example
3. 3-4 sections, each with a short heading and a practical insight
4. A conclusion that summarizes the takeaway and invites discussion

Format requirements:
- Plain text with blank lines between sections (no markdown headings)
- Specific examples and numbers over generalities
- Personal, experienced voice

Return the response in JSON format with this structure:
{
  "title": "Article headline, under 150 characters",
  "content": "Full article text",
  "tags": ["3-5 topical tags, single words or CamelCase"]
}

Return only the JSON, no additional text.`, topic, tone)
}

func expandPrompt(base, theme string) string {
	return fmt.Sprintf(`Generate 5 specific, attention-grabbing post topics based on this base topic: %s

Theme: %s

Guidelines:
- Keep the essence of the base topic
- Add specific numbers or results where relevant
- Make each one credible and concrete
- Keep each under 100 characters

Return exactly 5 topics, one per line, no numbering and no additional text.`, base, theme)
}

func commentPrompt(post models.NetworkPost) string {
	return fmt.Sprintf(`Create a professional and engaging comment for this post:

Author: %s
Title: %s
Company: %s
Content: %s

The comment should be:
- Professional and relevant
- Add value to the discussion
- Show genuine interest
- Concise (1-2 sentences)
- Include a question or call to action

Return only the comment text.`, post.AuthorName, post.AuthorTitle, post.AuthorCompany, post.Text)
}

func connectionPrompt(prospect models.Prospect) string {
	return fmt.Sprintf(`Create a personalized connection request message for:
Name: %s
Title: %s
Company: %s
Mutual connections: %d

The message should be:
- Professional and friendly
- Mention a specific detail about their profile
- Include a clear reason for connecting
- Under 300 characters
- Free of generic phrases

Return only the message text.`, prospect.Name, prospect.Title, prospect.Company, prospect.MutualConnections)
}

package publisher

import (
	"encoding/json"
	"strings"

	"autopublish/internal/queue"
	"autopublish/internal/textutil"
)

// Article is the payload both backends persist or send.
type Article struct {
	Title      string          `json:"title"`
	Slug       string          `json:"slug"`
	Status     string          `json:"status"`
	SourceKind string          `json:"source_kind"`
	SourceRef  string          `json:"source_ref"`
	Make       string          `json:"make,omitempty"`
	Model      string          `json:"model,omitempty"`
	Trim       string          `json:"trim,omitempty"`
	Specs      json.RawMessage `json:"specs,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	Category   string          `json:"category,omitempty"`
	ImageURL   string          `json:"image_url,omitempty"`
}

// Article statuses.
const (
	StatusLive  = "publish"
	StatusDraft = "draft"
)

// NewArticle builds the payload for c.
func NewArticle(c *queue.Candidate, draft bool) Article {
	status := StatusLive
	if draft {
		status = StatusDraft
	}
	a := Article{
		Title:      strings.TrimSpace(c.Title),
		Slug:       Slug(c.Title),
		Status:     status,
		SourceKind: string(c.SourceKind),
		SourceRef:  c.SourceRef,
		Tags:       c.Tags,
		Category:   c.Category,
		ImageURL:   strings.TrimSpace(c.ImageURL),
	}
	if !textutil.IsUnresolved(c.Make) {
		a.Make = strings.TrimSpace(c.Make)
	}
	if !textutil.IsUnresolved(c.Model) {
		a.Model = strings.TrimSpace(c.Model)
	}
	if !textutil.IsUnresolved(c.Trim) {
		a.Trim = strings.TrimSpace(c.Trim)
	}
	if specs := strings.TrimSpace(c.SpecsJSON); specs != "" && json.Valid([]byte(specs)) {
		a.Specs = json.RawMessage(specs)
	}
	return a
}

// Slug lowercases title and joins its alphanumeric runs with hyphens.
func Slug(title string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(title) {
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isWord {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "article"
	}
	return b.String()
}

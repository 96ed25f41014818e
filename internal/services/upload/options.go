package upload

import (
	"fmt"
	"html"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"vidpipe/internal/config"
)

// Visibility values accepted by every platform.
const (
	VisibilityPublic   = "public"
	VisibilityPrivate  = "private"
	VisibilityUnlisted = "unlisted"
)

var visibilities = []string{VisibilityPublic, VisibilityPrivate, VisibilityUnlisted}

// Options describes the destination and metadata of one upload.
type Options struct {
	Platform    string   `json:"platform"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Visibility  string   `json:"visibility"`
	Category    string   `json:"category,omitempty"`
	Language    string   `json:"language,omitempty"`
}

// Limits caps metadata for a platform. Zero means unlimited.
type Limits struct {
	MaxTitleLength       int
	MaxDescriptionLength int
	MaxTags              int
}

// LimitsFromConfig extracts the metadata limits of every configured platform.
func LimitsFromConfig(cfg config.Upload) map[string]Limits {
	limits := make(map[string]Limits, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		limits[name] = Limits{
			MaxTitleLength:       p.MaxTitleLength,
			MaxDescriptionLength: p.MaxDescriptionLength,
			MaxTags:              p.MaxTags,
		}
	}
	return limits
}

var markup = bluemonday.StrictPolicy()

// stripMarkup removes tags and restores the entities the policy escapes.
func stripMarkup(value string) string {
	return strings.TrimSpace(html.UnescapeString(markup.Sanitize(value)))
}

// Sanitize returns a copy with markup removed from free-text fields and
// whitespace trimmed. Empty tags are dropped.
func (o Options) Sanitize() Options {
	out := o
	out.Platform = strings.ToLower(strings.TrimSpace(o.Platform))
	out.Visibility = strings.ToLower(strings.TrimSpace(o.Visibility))
	out.Title = stripMarkup(o.Title)
	out.Description = stripMarkup(o.Description)
	out.Category = strings.TrimSpace(o.Category)
	out.Language = strings.TrimSpace(o.Language)
	out.Tags = nil
	for _, tag := range o.Tags {
		tag = stripMarkup(tag)
		if tag != "" {
			out.Tags = append(out.Tags, tag)
		}
	}
	if out.Visibility == "" {
		out.Visibility = VisibilityPrivate
	}
	return out
}

// Check reports every problem with o against the platform table. A nil
// result means the options are acceptable.
func (o Options) Check(platforms map[string]Limits) []string {
	var problems []string
	limits, ok := platforms[o.Platform]
	if !ok {
		problems = append(problems, fmt.Sprintf("unsupported platform %q", o.Platform))
	}
	if !slices.Contains(visibilities, o.Visibility) {
		problems = append(problems, fmt.Sprintf("visibility must be one of %s", strings.Join(visibilities, ", ")))
	}
	if strings.TrimSpace(o.Title) == "" {
		problems = append(problems, "title is required")
	}
	if !ok {
		return problems
	}
	if n := utf8.RuneCountInString(o.Title); limits.MaxTitleLength > 0 && n > limits.MaxTitleLength {
		problems = append(problems, fmt.Sprintf("title exceeds %s limit of %d characters (%d)", o.Platform, limits.MaxTitleLength, n))
	}
	if n := utf8.RuneCountInString(o.Description); limits.MaxDescriptionLength > 0 && n > limits.MaxDescriptionLength {
		problems = append(problems, fmt.Sprintf("description exceeds %s limit of %d characters (%d)", o.Platform, limits.MaxDescriptionLength, n))
	}
	if limits.MaxTags > 0 && len(o.Tags) > limits.MaxTags {
		problems = append(problems, fmt.Sprintf("too many tags for %s: %d > %d", o.Platform, len(o.Tags), limits.MaxTags))
	}
	return problems
}

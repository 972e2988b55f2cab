// Package validation inspects a post against platform constraints before it is published.
// It never fails: every problem is reported as a Finding.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// All is the platform value of findings that concern the whole post.
const All = "all"

const (
	CodeEmptyContent    = "empty_content"
	CodeNotApproved     = "not_approved"
	CodeEmoji           = "emoji"
	CodeUnenhancedMedia = "unenhanced_media"
	CodeNoPlatforms     = "no_platforms"
	CodeUnknownPlatform = "unknown_platform"
	CodeNotConnected    = "not_connected"
	CodeOverLimit       = "over_limit"
	CodeMissingMedia    = "missing_media"
	CodeEngagement      = "engagement"
)

type Finding struct {
	Platform string   `json:"platform"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
}

type Input struct {
	Content   string
	Platforms []string
	PhotoURLs []string
	Status    models.PostStatus
}

// Pictographic emoji blocks only. Dashes, bullets and arrows live outside these ranges.
var emojiPattern = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{1F900}-\x{1F9FF}\x{1FA00}-\x{1FA6F}\x{1FA70}-\x{1FAFF}]`)

const (
	linkedInShortPost = 100
	xNearLimit        = 250
	maxEmojiShown     = 5
)

// Gate holds the static inputs of validation. The zero value uses the default catalog and
// treats every available platform as connected.
type Gate struct {
	Catalog        platform.Catalog
	EnhancedPrefix string
	Connected      func(platform string) bool
}

func New(catalog platform.Catalog, enhancedPrefix string, connected func(string) bool) Gate {
	return Gate{Catalog: catalog, EnhancedPrefix: enhancedPrefix, Connected: connected}
}

// ForPost is Validate on a post's stored fields.
func (g Gate) ForPost(post models.Post) []Finding {
	return g.Validate(Input{
		Content:   post.Content,
		Platforms: post.Platforms,
		PhotoURLs: post.PhotoURLs,
		Status:    post.Status,
	})
}

func (g Gate) Validate(in Input) []Finding {
	catalog := g.Catalog
	if catalog == nil {
		catalog = platform.DefaultCatalog()
	}

	var findings []Finding
	add := func(p, field, code string, sev Severity, format string, args ...any) {
		findings = append(findings, Finding{
			Platform: p,
			Field:    field,
			Message:  fmt.Sprintf(format, args...),
			Severity: sev,
			Code:     code,
		})
	}

	content := in.Content
	length := utf8.RuneCountInString(content)

	if strings.TrimSpace(content) == "" {
		add(All, "content", CodeEmptyContent, SeverityError, "Post content cannot be empty.")
	}
	if in.Status != models.PostStatusApproved {
		add(All, "status", CodeNotApproved, SeverityError, "Post must be approved before publishing. Current status: %s", in.Status)
	}
	if found := emojiPattern.FindAllString(content, -1); len(found) > 0 {
		add(All, "content", CodeEmoji, SeverityError, "No emojis allowed. Found: %s", strings.Join(uniqueFirst(found, maxEmojiShown), " "))
	}

	unenhanced := 0
	for _, url := range in.PhotoURLs {
		if g.EnhancedPrefix == "" || !strings.HasPrefix(url, g.EnhancedPrefix) {
			unenhanced++
		}
	}
	if unenhanced > 0 {
		add(All, "photos", CodeUnenhancedMedia, SeverityWarning, "%d photo(s) will be auto-enhanced before posting.", unenhanced)
	}

	if len(in.Platforms) == 0 {
		add(All, "platforms", CodeNoPlatforms, SeverityError, "No platforms selected.")
	}

	for _, key := range in.Platforms {
		spec, ok := catalog.Lookup(key)
		if !ok {
			add(key, "platform", CodeUnknownPlatform, SeverityError, "Unknown platform %q.", key)
			continue
		}
		name := catalog.DisplayName(key)

		if !spec.Available || (g.Connected != nil && !g.Connected(key)) {
			add(key, "platform", CodeNotConnected, SeverityWarning, "%s is not connected yet. It will be skipped.", name)
			continue
		}

		if spec.CharLimit > 0 && length > spec.CharLimit {
			if spec.SoftTruncate {
				add(key, "content", CodeOverLimit, SeverityWarning, "%s will auto-truncate your post (%d/%d chars). The rest will be cut off.", name, length, spec.CharLimit)
			} else {
				add(key, "content", CodeOverLimit, SeverityError, "%s has a %d character limit. Your post is %d characters (%d over).", name, spec.CharLimit, length, length-spec.CharLimit)
			}
		}

		if spec.RequiresMedia && len(in.PhotoURLs) == 0 {
			add(key, "photos", CodeMissingMedia, SeverityWarning, "%s requires at least 1 photo. It will be skipped unless you add one.", name)
		}

		switch key {
		case platform.Facebook:
			if len(in.PhotoURLs) == 0 {
				add(key, "photos", CodeEngagement, SeverityWarning, "Facebook posts with photos get 2-3x more engagement. Consider adding one.")
			}
		case platform.LinkedIn:
			if length > 0 && length < linkedInShortPost {
				add(key, "content", CodeEngagement, SeverityWarning, "LinkedIn posts under %d characters tend to get less engagement.", linkedInShortPost)
			}
		case platform.X:
			if length > xNearLimit && length <= spec.CharLimit {
				add(key, "content", CodeEngagement, SeverityWarning, "X post is %d/%d characters. Close to the limit.", length, spec.CharLimit)
			}
		}
	}

	return findings
}

func uniqueFirst(values []string, n int) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, n)
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}

func HasBlockingErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// GroupByPlatform keeps the order of findings within each platform.
func GroupByPlatform(findings []Finding) map[string][]Finding {
	grouped := make(map[string][]Finding)
	for _, f := range findings {
		grouped[f.Platform] = append(grouped[f.Platform], f)
	}
	return grouped
}

// SkippedPlatforms lists platforms that will not be published to even though the post as a
// whole may proceed.
func SkippedPlatforms(findings []Finding) map[string]string {
	skipped := make(map[string]string)
	for _, f := range findings {
		if f.Platform == All {
			continue
		}
		if f.Code == CodeNotConnected || f.Code == CodeMissingMedia {
			if _, ok := skipped[f.Platform]; !ok {
				skipped[f.Platform] = f.Message
			}
		}
	}
	return skipped
}

// BlockingFor returns the first error finding for p, either global or platform-scoped.
func BlockingFor(findings []Finding, p string) (Finding, bool) {
	for _, f := range findings {
		if f.Severity == SeverityError && (f.Platform == All || f.Platform == p) {
			return f, true
		}
	}
	return Finding{}, false
}

// Split separates errors from warnings, preserving order.
func Split(findings []Finding) (errs, warnings []Finding) {
	for _, f := range findings {
		if f.Severity == SeverityError {
			errs = append(errs, f)
		} else {
			warnings = append(warnings, f)
		}
	}
	return errs, warnings
}

// Summary renders findings as one line each, errors first.
func Summary(findings []Finding) []string {
	errs, warnings := Split(findings)
	lines := make([]string, 0, len(findings))
	for _, group := range [][]Finding{errs, warnings} {
		for _, f := range group {
			prefix := "WARNING"
			if f.Severity == SeverityError {
				prefix = "ERROR"
			}
			if f.Platform != All {
				prefix += " [" + strings.ToUpper(f.Platform) + "]"
			}
			lines = append(lines, prefix+" "+f.Message)
		}
	}
	return lines
}

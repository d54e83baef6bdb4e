package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTitleRunes caps generated and derived titles.
	MaxTitleRunes = 40

	// TitleContextMessages limits how much history feeds title inference.
	TitleContextMessages = 6

	// MinMessagesForTitle is how many messages must exist before a title
	// is inferred.
	MinMessagesForTitle = 2
)

var greetingOnly = regexp.MustCompile(`^(?i)(hi|hello|hey|greetings?)$`)

// NeedsTitle reports whether a session should get a descriptive title:
// the current title is still the placeholder or resembles a greeting, and
// enough messages exist to infer a topic.
func NeedsTitle(title string, messageCount int64) bool {
	if messageCount < MinMessagesForTitle {
		return false
	}
	if title == DefaultTitle {
		return true
	}
	lower := strings.ToLower(title)
	return strings.Contains(lower, "hello") || strings.Contains(lower, "greeting") || strings.Contains(lower, "hi")
}

// IsGreeting reports whether a message is nothing but a greeting.
func IsGreeting(content string) bool {
	return greetingOnly.MatchString(strings.TrimSpace(content))
}

// FallbackTitle derives a title from the first non-greeting user message:
// trimmed, first letter capitalized, truncated with an ellipsis when over
// the cap. Returns empty when no meaningful message exists.
func FallbackTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Role != RoleUser || IsGreeting(msg.Content) {
			continue
		}
		return formatTitle(msg.Content)
	}
	return ""
}

// ClampTitle trims a generated title to the rune cap without an ellipsis,
// matching how model generated titles are cut.
func ClampTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) > MaxTitleRunes {
		return string(runes[:MaxTitleRunes])
	}
	return title
}

func formatTitle(content string) string {
	title := strings.TrimSpace(content)
	if title == "" {
		return ""
	}

	first, size := utf8.DecodeRuneInString(title)
	title = strings.ToUpper(string(first)) + title[size:]

	runes := []rune(title)
	if len(runes) > MaxTitleRunes {
		title = strings.TrimSpace(string(runes[:MaxTitleRunes])) + "..."
	}
	return title
}

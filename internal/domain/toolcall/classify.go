// Package toolcall classifies raw tool invocations into user facing
// toolkit, action name, and logo information. Provider meta tools that
// wrap concrete tool calls are unwrapped so the UI shows the real tool.
package toolcall

import (
	"strings"
)

const (
	// Meta tool slugs emitted by the tool router.
	MetaMultiExecute      = "COMPOSIO_MULTI_EXECUTE_TOOL"
	MetaSearchTools       = "COMPOSIO_SEARCH_TOOLS"
	MetaManageConnections = "COMPOSIO_MANAGE_CONNECTIONS"
	MetaRemoteWorkbench   = "COMPOSIO_REMOTE_WORKBENCH"

	// ToolkitInternal marks calls that belong to the tool router itself
	// rather than a connected integration.
	ToolkitInternal = "composio"

	// ToolkitUnknown marks slugs that carry no toolkit prefix.
	ToolkitUnknown = "unknown"

	internalLogoURL = "https://avatars.githubusercontent.com/u/156948988?s=200&v=4"
	logoBaseURL     = "https://logos.composio.dev/api/"
)

// Classification is the user facing description of one tool call.
type Classification struct {
	Toolkit    string `json:"toolkit"`
	ActionName string `json:"action_name"`
	LogoURL    string `json:"logo_url"`
}

// metaActions maps router internal slugs to readable action names.
var metaActions = map[string]string{
	MetaSearchTools:       "Search Tools",
	MetaMultiExecute:      "Execute Tools",
	MetaManageConnections: "Manage Connections",
	MetaRemoteWorkbench:   "Process Request",
}

// displayNames maps toolkit identifiers to display names. Toolkits not
// listed here fall back to simple capitalization.
var displayNames = map[string]string{
	"gmail":          "Gmail",
	"googlesheets":   "Google Sheets",
	"googledocs":     "Google Docs",
	"googlecalendar": "Google Calendar",
	"googledrive":    "Google Drive",
	"github":         "GitHub",
	"slack":          "Slack",
	"notion":         "Notion",
	"whatsapp":       "WhatsApp",
	"discord":        "Discord",
	"twitter":        "Twitter",
	"linkedin":       "LinkedIn",
	ToolkitInternal:  "Composio",
}

// searchHint maps a use case keyword to the toolkit and action shown while
// the router searches for tools. Checked in order.
type searchHint struct {
	keywords []string
	toolkit  string
	action   string
}

var searchHints = []searchHint{
	{[]string{"email", "gmail"}, "gmail", "Finding email tools"},
	{[]string{"sheet", "spreadsheet"}, "googlesheets", "Finding spreadsheet tools"},
	{[]string{"doc"}, "googledocs", "Finding document tools"},
	{[]string{"calendar"}, "googlecalendar", "Finding calendar tools"},
	{[]string{"slack"}, "slack", "Finding Slack tools"},
	{[]string{"github"}, "github", "Finding GitHub tools"},
}

// Classify resolves a tool slug and its raw input into a Classification.
// Meta tools are unwrapped: a multi execute call is reported as its first
// wrapped tool, a search call is reported by use case keyword. The result
// is deterministic for a given slug and input.
func Classify(slug string, input map[string]any) Classification {
	if c, ok := classifyMeta(slug, input); ok {
		return c
	}

	toolkit := ExtractToolkit(slug)
	return Classification{
		Toolkit:    toolkit,
		ActionName: ActionName(slug),
		LogoURL:    LogoURL(toolkit),
	}
}

// classifyMeta handles the two meta tools whose input wraps the real call.
func classifyMeta(slug string, input map[string]any) (Classification, bool) {
	if input == nil {
		return Classification{}, false
	}

	switch slug {
	case MetaMultiExecute:
		// Input shape: {"tools": [{"tool_slug": "GMAIL_SEND_EMAIL", ...}]}
		tools, ok := input["tools"].([]any)
		if !ok || len(tools) == 0 {
			return Classification{}, false
		}
		first, ok := tools[0].(map[string]any)
		if !ok {
			return Classification{}, false
		}
		inner := firstString(first, "tool_slug", "toolSlug", "name")
		if inner == "" {
			return Classification{}, false
		}
		toolkit := ExtractToolkit(inner)
		return Classification{
			Toolkit:    toolkit,
			ActionName: ActionName(inner),
			LogoURL:    LogoURL(toolkit),
		}, true

	case MetaSearchTools:
		// Input shape: {"queries": [{"use_case": "send email"}]}
		queries, ok := input["queries"].([]any)
		if !ok || len(queries) == 0 {
			return Classification{}, false
		}
		first, ok := queries[0].(map[string]any)
		if !ok {
			return Classification{}, false
		}
		useCase, _ := first["use_case"].(string)
		lower := strings.ToLower(useCase)
		for _, hint := range searchHints {
			for _, kw := range hint.keywords {
				if strings.Contains(lower, kw) {
					return Classification{
						Toolkit:    hint.toolkit,
						ActionName: hint.action,
						LogoURL:    LogoURL(hint.toolkit),
					}, true
				}
			}
		}
		return Classification{
			Toolkit:    ToolkitInternal,
			ActionName: "Searching for tools",
			LogoURL:    LogoURL(ToolkitInternal),
		}, true
	}

	return Classification{}, false
}

// firstString returns the first non-empty string value among the keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ExtractToolkit derives a toolkit identifier from a tool slug, for
// example GMAIL_SEND_EMAIL yields gmail. Router internal slugs map to
// the internal toolkit.
func ExtractToolkit(slug string) string {
	if strings.HasPrefix(slug, "COMPOSIO_") {
		return ToolkitInternal
	}
	parts := strings.Split(slug, "_")
	if len(parts) > 1 {
		return strings.ToLower(parts[0])
	}
	return ToolkitUnknown
}

// LogoURL returns the logo URL for a toolkit, or empty for unknown.
func LogoURL(toolkit string) string {
	switch toolkit {
	case ToolkitUnknown:
		return ""
	case ToolkitInternal:
		return internalLogoURL
	default:
		return logoBaseURL + toolkit
	}
}

// DisplayName returns the human readable name for a toolkit.
func DisplayName(toolkit string) string {
	if name, ok := displayNames[toolkit]; ok {
		return name
	}
	if toolkit == "" {
		return ""
	}
	return strings.ToUpper(toolkit[:1]) + toolkit[1:]
}

// ActionName turns a tool slug into a readable action name. The toolkit
// prefix is dropped and the remaining words are capitalized, so
// GMAIL_SEND_EMAIL yields "Send Email".
func ActionName(slug string) string {
	if action, ok := metaActions[slug]; ok {
		return action
	}

	parts := strings.Split(slug, "_")
	if len(parts) > 1 {
		words := make([]string, 0, len(parts)-1)
		for _, p := range parts[1:] {
			words = append(words, titleWord(p))
		}
		return strings.Join(words, " ")
	}

	return titleWord(slug)
}

func titleWord(w string) string {
	if w == "" {
		return ""
	}
	lower := strings.ToLower(w)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

package slack

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxChannelNameLength is the longest channel name Slack accepts
const MaxChannelNameLength = 80

// NormalizeChannelName normalizes a string to be a valid Slack channel name
// Slack allows: lowercase letters, numbers, hyphens, underscores, and Unicode characters
// Slack prohibits: uppercase (Latin), spaces, slashes, periods, commas, and special symbols
func NormalizeChannelName(name string) string {
	name = strings.ReplaceAll(name, " ", "-")

	var result strings.Builder
	result.Grow(len(name))

	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else if r >= 'A' && r <= 'Z' {
			result.WriteRune(unicode.ToLower(r))
		} else if r > 127 {
			if !isProhibitedSymbol(r) {
				result.WriteRune(r)
			}
		}
	}

	return result.String()
}

// isProhibitedSymbol checks if a Unicode character is prohibited in Slack channel names
func isProhibitedSymbol(r rune) bool {
	prohibitedRunes := []rune{
		'。', '、', '！', '？', '／', '＼', '．', '，',
	}

	for _, prohibited := range prohibitedRunes {
		if r == prohibited {
			return true
		}
	}
	return false
}

// ConversationName returns the channel name of a subject. Subject names such
// as "default-security-0001" pass through unchanged; anything else is
// normalized and cut to MaxChannelNameLength bytes on a rune boundary.
func ConversationName(subjectName string) string {
	name := NormalizeChannelName(subjectName)
	if len(name) > MaxChannelNameLength {
		cut := MaxChannelNameLength
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return strings.Trim(name, "-")
}

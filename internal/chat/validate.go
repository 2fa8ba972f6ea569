package chat

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var collapseWhitespace = regexp.MustCompile(`\s+`)

// Validator checks and sanitizes user input before any request is
// made. Failures here are local; callers surface them inline and
// never issue a round trip.
type Validator struct {
	maxMessageLength int
	maxNameLength    int
}

// NewValidator creates an input validator with the given limits.
func NewValidator(maxMessageLength, maxNameLength int) *Validator {
	return &Validator{
		maxMessageLength: maxMessageLength,
		maxNameLength:    maxNameLength,
	}
}

// ValidateMessageBody rejects empty or whitespace-only bodies and
// bodies over the configured rune limit, and escapes HTML.
func (v *Validator) ValidateMessageBody(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("message cannot be empty")
	}
	if utf8.RuneCountInString(body) > v.maxMessageLength {
		return "", fmt.Errorf("message too long (max %d characters)", v.maxMessageLength)
	}

	body = strings.TrimSpace(body)
	body = collapseWhitespace.ReplaceAllString(body, " ")
	return html.EscapeString(body), nil
}

// ValidateRecipient rejects a missing peer identity.
func (v *Validator) ValidateRecipient(peerID string) error {
	if strings.TrimSpace(peerID) == "" {
		return fmt.Errorf("recipient is required")
	}
	return nil
}

// ValidateName checks a display name for emptiness and length.
func (v *Validator) ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > v.maxNameLength {
		return "", fmt.Errorf("name too long (max %d characters)", v.maxNameLength)
	}
	return html.EscapeString(name), nil
}

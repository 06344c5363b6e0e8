package service

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// MaxModelIDLength is the maximum length for an upstream model identifier.
const MaxModelIDLength = 128

// validModelPattern matches provider model ids such as
// "anthropic/claude-3.5-sonnet" or "openai/gpt-4o:online".
var validModelPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._:/-]*$`)

// KnownRoles are the chat roles forwarded upstream.
var KnownRoles = map[string]bool{
	"system":    true,
	"user":      true,
	"assistant": true,
	"tool":      true,
	"developer": true,
}

// Validate checks the request shape. Every failure wraps ErrInvalidRequest.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}
	for i, m := range r.Messages {
		if m.Role == "" {
			return fmt.Errorf("%w: messages[%d].role is required", ErrInvalidRequest, i)
		}
		if !KnownRoles[m.Role] {
			return fmt.Errorf("%w: messages[%d].role %q is not supported", ErrInvalidRequest, i, m.Role)
		}
		content := bytes.TrimSpace(m.Content)
		if len(content) == 0 || bytes.Equal(content, []byte("null")) {
			return fmt.Errorf("%w: messages[%d].content is required", ErrInvalidRequest, i)
		}
	}
	if err := validateModelID(r.Model); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidRequest)
	}
	return nil
}

// validateModelID accepts an empty id, which selects the default model.
func validateModelID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > MaxModelIDLength {
		return fmt.Errorf("model id exceeds %d characters", MaxModelIDLength)
	}
	for _, c := range id {
		if c > unicode.MaxASCII {
			return fmt.Errorf("model id contains non-ascii characters")
		}
	}
	if !validModelPattern.MatchString(id) || strings.Contains(id, "//") {
		return fmt.Errorf("model id contains invalid characters")
	}
	return nil
}

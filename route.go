package pollchat

import (
	"fmt"
	"strings"
)

const directPrefix = "dm:"

// ParseTarget parses a deep-link target: "general" opens a group chat,
// "dm:bob" a direct conversation. A leading "#" is ignored.
func ParseTarget(target string) (Conversation, error) {
	target = strings.TrimPrefix(strings.TrimSpace(target), "#")
	if target == "" {
		return Conversation{}, ErrInvalidTarget
	}

	var conv Conversation
	if peer, ok := strings.CutPrefix(target, directPrefix); ok {
		conv = Direct(peer)
	} else {
		conv = Group(target)
	}
	if err := conv.validate(); err != nil {
		return Conversation{}, fmt.Errorf("%w %q: %w", ErrInvalidTarget, target, err)
	}
	return conv, nil
}

// Target is the inverse of ParseTarget.
func (c Conversation) Target() string {
	if c.Kind == KindDirect {
		return directPrefix + c.Name
	}
	return c.Name
}

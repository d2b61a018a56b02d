package pollchat

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNicknameLength  = 20
	maxGroupNameLength = 30
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// HashPassword returns the hex SHA-256 digest sent to the store in place of
// the raw password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// ValidateNickname checks a user nickname: 1-20 characters of [a-zA-Z0-9_].
func ValidateNickname(nick string) error {
	if nick == "" || len(nick) > maxNicknameLength {
		return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidNickname, maxNicknameLength)
	}
	if !namePattern.MatchString(nick) {
		return fmt.Errorf("%w: only letters, digits and _ are allowed", ErrInvalidNickname)
	}
	return nil
}

// ValidateGroupName checks a group chat name: 1-30 characters of
// [a-zA-Z0-9_], not starting with "_" or "dm_".
func ValidateGroupName(name string) error {
	if name == "" || len(name) > maxGroupNameLength {
		return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidGroupName, maxGroupNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: only letters, digits and _ are allowed", ErrInvalidGroupName)
	}
	if strings.HasPrefix(name, "_") {
		return fmt.Errorf("%w: must not start with _", ErrInvalidGroupName)
	}
	if strings.HasPrefix(name, "dm_") {
		return fmt.Errorf("%w: must not start with dm_", ErrInvalidGroupName)
	}
	return nil
}

// AuthErrorMessage turns a login/register failure into text for the
// authentication screen.
func AuthErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrMissingCredentials) {
		return "Fill in all fields"
	}
	switch code := CodeOf(err); code {
	case CodeInvalidCredentials:
		return "Wrong nickname or password"
	case CodeNicknameTaken:
		return "Nickname is already taken"
	case CodeNetworkError:
		return "No connection to the server"
	case "":
		return "Error: " + err.Error()
	default:
		return "Error: " + string(code)
	}
}

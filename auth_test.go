package pollchat

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPassword(t *testing.T) {
	assert.Equal(t, "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8", HashPassword("password"))
	assert.Len(t, HashPassword(""), 64)
}

func TestValidateNickname(t *testing.T) {
	for _, nick := range []string{"a", "alice_99", strings.Repeat("x", 20), "_lead"} {
		assert.NoError(t, ValidateNickname(nick), nick)
	}
	for _, nick := range []string{"", strings.Repeat("x", 21), "has space", "emoji🙂", "dash-ed"} {
		assert.ErrorIs(t, ValidateNickname(nick), ErrInvalidNickname, nick)
	}
}

func TestValidateGroupName(t *testing.T) {
	for _, name := range []string{"general", "g", "team_42", strings.Repeat("x", 30), "dmz"} {
		assert.NoError(t, ValidateGroupName(name), name)
	}
	for _, name := range []string{"", strings.Repeat("x", 31), "_hidden", "dm_alice_bob", "no spaces", "a.b"} {
		assert.ErrorIs(t, ValidateGroupName(name), ErrInvalidGroupName, name)
	}
}

func TestAuthErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrMissingCredentials, "Fill in all fields"},
		{&APIError{Code: CodeInvalidCredentials}, "Wrong nickname or password"},
		{&APIError{Code: CodeNicknameTaken}, "Nickname is already taken"},
		{&APIError{Code: CodeNetworkError, Err: errors.New("eof")}, "No connection to the server"},
		{fmt.Errorf("login: %w", &APIError{Code: "rate_limited"}), "Error: rate_limited"},
		{errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AuthErrorMessage(tt.err))
	}
}

func TestAPIErrorMatching(t *testing.T) {
	err := fmt.Errorf("fetch: %w", &APIError{Code: CodeUnauthorized, Message: "expired"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.Equal(t, CodeUnauthorized, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, "unauthorized: expired", errors.Unwrap(err).Error())

	cause := errors.New("dial refused")
	netErr := &APIError{Code: CodeNetworkError, Err: cause}
	assert.ErrorIs(t, netErr, cause)
	assert.Equal(t, "network_error: dial refused", netErr.Error())
}

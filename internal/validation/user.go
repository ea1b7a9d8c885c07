// Package validation holds the input rules shared by registration and
// profile updates.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinUsernameLen    = 3
	MaxUsernameLen    = 30
	MinPasswordLen    = 6
	MaxPasswordLen    = 72
	MaxDisplayNameLen = 50
	MaxBioLen         = 280
	maxEmailLen       = 254
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var reservedUsernames = map[string]struct{}{
	"admin":         {},
	"api":           {},
	"auth":          {},
	"settings":      {},
	"users":         {},
	"posts":         {},
	"polls":         {},
	"search":        {},
	"notifications": {},
	"media":         {},
	"ws":            {},
	"swagger":       {},
	"metrics":       {},
	"login":         {},
	"register":      {},
	"me":            {},
}

// ValidateUsername checks length, charset and reserved names.
func ValidateUsername(username string) error {
	if n := len(username); n < MinUsernameLen || n > MaxUsernameLen {
		return fmt.Errorf("username must be %d-%d characters", MinUsernameLen, MaxUsernameLen)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username may only contain letters, numbers and underscores")
	}
	if _, reserved := reservedUsernames[strings.ToLower(username)]; reserved {
		return fmt.Errorf("username is reserved")
	}
	return nil
}

// ValidateEmail accepts a bare addr-spec of at most 254 characters.
func ValidateEmail(email string) error {
	if email == "" || len(email) > maxEmailLen {
		return fmt.Errorf("a valid email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("a valid email is required")
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") || strings.HasPrefix(domain, ".") {
		return fmt.Errorf("a valid email is required")
	}
	return nil
}

// ValidatePassword enforces the length window. bcrypt ignores bytes past 72.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordLen)
	}
	return nil
}

// ValidateDisplayName requires 1-50 characters after trimming.
func ValidateDisplayName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 || n > MaxDisplayNameLen {
		return fmt.Errorf("display name must be 1-%d characters", MaxDisplayNameLen)
	}
	return nil
}

func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLen {
		return fmt.Errorf("bio must be at most %d characters", MaxBioLen)
	}
	return nil
}

package parse

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxUserNameLen   = 100
	maxRoomNumberLen = 10
)

var (
	roomNumberRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// FieldError reports which user-supplied field failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UserName trims and validates the name a user types when starting a program.
// Inner whitespace runs are collapsed to a single space.
func UserName(raw string) (string, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	if s == "" {
		return "", &FieldError{Field: "user_name", Message: "Name is required"}
	}
	if utf8.RuneCountInString(s) > maxUserNameLen {
		return "", &FieldError{Field: "user_name", Message: fmt.Sprintf("Name must be at most %d characters", maxUserNameLen)}
	}
	return s, nil
}

// RoomNumber trims and validates a room number such as "201" or "A-15".
func RoomNumber(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &FieldError{Field: "room_number", Message: "Room number is required"}
	}
	if len(s) > maxRoomNumberLen {
		return "", &FieldError{Field: "room_number", Message: fmt.Sprintf("Room number must be at most %d characters", maxRoomNumberLen)}
	}
	if !roomNumberRe.MatchString(s) {
		return "", &FieldError{Field: "room_number", Message: "Room number can only contain letters, numbers, and hyphens"}
	}
	return s, nil
}

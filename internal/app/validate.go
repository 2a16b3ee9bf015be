package app

import "strings"

const (
	// MaxFileSize is 10 MiB, the backend's upload limit.
	MaxFileSize = 10 * 1024 * 1024

	MinQuestionLen = 3
	MaxQuestionLen = 500
)

var allowedFileTypes = map[string]bool{
	"application/pdf":    true,
	"text/plain":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// ValidateFile checks the declared size and MIME type of a candidate
// upload. Pure; issues no I/O.
func ValidateFile(size int64, mimeType string) error {
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	if !allowedFileTypes[mimeType] {
		return ErrUnsupportedFileType
	}
	return nil
}

// ValidateQuestion checks a question's trimmed length. Pure.
func ValidateQuestion(question string) error {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return ErrEmptyQuestion
	}
	if len([]rune(trimmed)) < MinQuestionLen {
		return ErrQuestionTooShort
	}
	if len([]rune(trimmed)) > MaxQuestionLen {
		return ErrQuestionTooLong
	}
	return nil
}

// ValidateIdentity checks that a user id is present. Pure.
func ValidateIdentity(id Identity) error {
	if !id.Present() {
		return ErrAuthenticationRequired
	}
	return nil
}

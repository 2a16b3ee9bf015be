package app

import (
	"errors"
	"fmt"
)

// Validation failures. These are resolved locally and never reach the
// network layer.
var (
	ErrAuthenticationRequired = errors.New("please log in first")
	ErrFileTooLarge           = errors.New("file size must be less than 10MB")
	ErrUnsupportedFileType    = errors.New("only PDF, TXT, DOC, and DOCX files are allowed")
	ErrEmptyQuestion          = errors.New("please enter a question")
	ErrQuestionTooShort       = errors.New("question must be at least 3 characters long")
	ErrQuestionTooLong        = errors.New("question must be less than 500 characters")
	ErrNoActiveDocument       = errors.New("no document uploaded, please upload a document first")
)

// Controller-level failures.
var (
	ErrUploadInFlight = errors.New("an upload is already in progress")
	ErrQueryInFlight  = errors.New("a question is already being answered")
	ErrUploadRejected = errors.New("upload rejected")
	ErrQueryFailed    = errors.New("query failed")
	ErrNetwork        = errors.New("network error")
)

// BackendError carries the backend's JSON error message alongside the
// HTTP status it arrived with.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

// FailureDetail extracts the human-readable part of a controller error:
// the backend message when one exists, the error text otherwise.
func FailureDetail(err error) string {
	if err == nil {
		return ""
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Error()
	}
	return err.Error()
}

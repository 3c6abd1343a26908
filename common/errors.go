package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the HTTP layer can pick a status code.
type ErrorKind string

const (
	KindConfig     ErrorKind = "config"
	KindExtraction ErrorKind = "extraction"
	KindValidation ErrorKind = "validation"
	KindTemplate   ErrorKind = "template"
	KindIO         ErrorKind = "io"
)

var (
	ErrNotConfigured    = errors.New("no AI provider configured")
	ErrExtractionFailed = errors.New("content extraction failed")
	ErrInvalidUpload    = errors.New("invalid upload")
	ErrTemplateNotFound = errors.New("template not found")
)

// Error carries a kind and the underlying cause
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ConfigError(message string, err error) *Error {
	return NewError(KindConfig, message, err)
}

func ExtractionError(message string, err error) *Error {
	return NewError(KindExtraction, message, err)
}

func ValidationError(message string, err error) *Error {
	return NewError(KindValidation, message, err)
}

func TemplateError(message string, err error) *Error {
	return NewError(KindTemplate, message, err)
}

func IOError(message string, err error) *Error {
	return NewError(KindIO, message, err)
}

// KindOf returns the kind of the first *Error in the chain, falling back to
// the sentinel errors, or "" when neither is present.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotConfigured):
		return KindConfig
	case errors.Is(err, ErrExtractionFailed):
		return KindExtraction
	case errors.Is(err, ErrInvalidUpload):
		return KindValidation
	case errors.Is(err, ErrTemplateNotFound):
		return KindTemplate
	}
	return ""
}

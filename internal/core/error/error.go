package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// DataUnavailableMessage describes a corpus or database file that could not be read.
	DataUnavailableMessage = "data source unavailable"
	// ClassificationParseMessage describes an unparseable classifier reply.
	ClassificationParseMessage = "classification reply could not be parsed"
	// ModelCallMessage describes a failed language model call.
	ModelCallMessage = "language model call failed"
	// ManuscriptNotFoundMessage describes a manuscript id with no matching record.
	ManuscriptNotFoundMessage = "manuscript not found"
	// OffTopicMessage describes a query outside the manuscript desk domain.
	OffTopicMessage = "query is outside the supported topics"
	// ConversationClosedMessage is returned when a closed conversation receives a turn.
	ConversationClosedMessage = "conversation is closed"
	// ConversationNotFoundMessage is returned for unknown conversation ids.
	ConversationNotFoundMessage = "conversation not found"
	// InvalidInputMessage describes a rejected request payload.
	InvalidInputMessage = "invalid input"
)

// Sentinel kinds. Every AppError produced by the constructors below wraps one
// of these so callers can branch with errors.Is.
var (
	ErrDataUnavailable      = errors.New("data unavailable")
	ErrClassificationParse  = errors.New("classification parse failure")
	ErrModelCall            = errors.New("model call failure")
	ErrModelTimeout         = errors.New("model call timed out")
	ErrManuscriptNotFound   = errors.New("manuscript not found")
	ErrOffTopic             = errors.New("off-topic query")
	ErrConversationClosed   = errors.New("conversation closed")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidInput         = errors.New("invalid input")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

func kind(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}

// DataUnavailable marks a corpus or lookup file that could not be read.
func DataUnavailable(err error) *AppError {
	return New(kind(ErrDataUnavailable, err), http.StatusServiceUnavailable, DataUnavailableMessage)
}

// ClassificationParse marks a classifier reply that is not valid JSON.
func ClassificationParse(err error) *AppError {
	return New(kind(ErrClassificationParse, err), http.StatusUnprocessableEntity, ClassificationParseMessage)
}

// ModelCall marks a failed call to the language model.
func ModelCall(err error) *AppError {
	return New(kind(ErrModelCall, err), http.StatusBadGateway, ModelCallMessage)
}

// ModelTimeout marks a model call that exceeded its deadline. It matches both
// ErrModelTimeout and ErrModelCall.
func ModelTimeout(err error) *AppError {
	return New(fmt.Errorf("%w: %w: %v", ErrModelCall, ErrModelTimeout, err), http.StatusGatewayTimeout, ModelCallMessage)
}

// ManuscriptNotFound marks a well-formed manuscript id with no record.
func ManuscriptNotFound(manuscriptID string) *AppError {
	return New(fmt.Errorf("%w: %s", ErrManuscriptNotFound, manuscriptID), http.StatusNotFound, ManuscriptNotFoundMessage)
}

// OffTopic marks a query outside the declared domain.
func OffTopic(reason string) *AppError {
	return New(kind(ErrOffTopic, errors.New(reason)), http.StatusUnprocessableEntity, OffTopicMessage)
}

// ConversationClosed is returned when a turn targets a closed conversation.
func ConversationClosed(conversationID string) *AppError {
	return New(fmt.Errorf("%w: %s", ErrConversationClosed, conversationID), http.StatusConflict, ConversationClosedMessage)
}

// ConversationNotFound is returned when a conversation id is unknown.
func ConversationNotFound(conversationID string) *AppError {
	return New(fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID), http.StatusNotFound, ConversationNotFoundMessage)
}

// InvalidInput rejects a malformed request.
func InvalidInput(reason string) *AppError {
	return New(kind(ErrInvalidInput, errors.New(reason)), http.StatusBadRequest, InvalidInputMessage)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the safe message carried by err, or the system fallback.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}

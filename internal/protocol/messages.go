package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorCode identifies a failure class on the wire.
type ErrorCode string

const (
	CodeInvalidJSON   ErrorCode = "invalid_json"
	CodeTextTooLong   ErrorCode = "text_too_long"
	CodeChatTimeout   ErrorCode = "chat_timeout"
	CodeTTSTimeout    ErrorCode = "tts_timeout"
	CodeOpenAIError   ErrorCode = "openai_error"
	CodeBusy          ErrorCode = "busy"
	CodeInternalError ErrorCode = "internal_error"
)

// MessageIn is the only accepted inbound frame.
type MessageIn struct {
	Text string `json:"text"`
}

// ErrorBody carries the failure class and a client-safe message.
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorFrame is the outbound failure frame; exactly one is sent per
// failed request.
type ErrorFrame struct {
	Error ErrorBody `json:"error"`
}

func NewErrorFrame(code ErrorCode, message string) ErrorFrame {
	return ErrorFrame{Error: ErrorBody{Code: code, Message: message}}
}

// ValidationError is returned by ParseTextMessage; Code maps directly to
// the error frame sent back to the client.
type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ParseTextMessage parses and validates one inbound text frame. The text
// is trimmed; it must be valid UTF-8 and hold between 1 and maxChars
// characters.
func ParseTextMessage(raw []byte, maxChars int) (MessageIn, error) {
	// Checked on the raw bytes: json.Unmarshal replaces invalid UTF-8
	// with U+FFFD, so mangled input would otherwise slip through.
	if !utf8.Valid(raw) {
		return MessageIn{}, &ValidationError{
			Code:    CodeTextTooLong,
			Message: "text must be valid UTF-8",
		}
	}

	var msg MessageIn
	if err := json.Unmarshal(raw, &msg); err != nil {
		return MessageIn{}, &ValidationError{
			Code:    CodeInvalidJSON,
			Message: "payload is not a valid JSON object with a text field",
		}
	}

	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return MessageIn{}, &ValidationError{
			Code:    CodeTextTooLong,
			Message: "text must not be empty",
		}
	}
	if n := utf8.RuneCountInString(msg.Text); n > maxChars {
		return MessageIn{}, &ValidationError{
			Code:    CodeTextTooLong,
			Message: fmt.Sprintf("text length %d exceeds limit of %d characters", n, maxChars),
		}
	}
	return msg, nil
}

package domain

import (
	"errors"
	"fmt"
)

// Category sentinels, used with NewSubSystemError for subsystem-specific
// errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrDisabled     = fmt.Errorf("disabled")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrAuthInvalid  = fmt.Errorf("authentication failed")
)

// Sentinel errors for the domain layer.
var (
	ErrWebhookNotFound  = fmt.Errorf("webhook not found")
	ErrDeliveryFailed   = fmt.Errorf("webhook delivery failed")
	ErrBackupFailed     = fmt.Errorf("backup failed")
	ErrGatewayAuth      = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrChannelSend      = fmt.Errorf("channel send failed")
	ErrChannelCircuitOn = fmt.Errorf("channel circuit open")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Webhook.Deliver")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "hooks", "backup")
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use:
// return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeDuplicate       ErrorCode = "DUPLICATE"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeDisabled        ErrorCode = "DISABLED"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeAuthInvalid     ErrorCode = "AUTH_INVALID"
	CodeWebhookNotFound ErrorCode = "WEBHOOK_NOT_FOUND"
	CodeDeliveryFailed  ErrorCode = "DELIVERY_FAILED"
	CodeBackupFailed    ErrorCode = "BACKUP_FAILED"
	CodeGatewayAuth     ErrorCode = "GATEWAY_AUTH"
	CodeChannelSend     ErrorCode = "CHANNEL_SEND"
	CodeChannelCircuit  ErrorCode = "CHANNEL_CIRCUIT_OPEN"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrWebhookNotFound:  CodeWebhookNotFound,
	ErrDeliveryFailed:   CodeDeliveryFailed,
	ErrBackupFailed:     CodeBackupFailed,
	ErrGatewayAuth:      CodeGatewayAuth,
	ErrChannelSend:      CodeChannelSend,
	ErrChannelCircuitOn: CodeChannelCircuit,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

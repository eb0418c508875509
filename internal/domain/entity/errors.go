package entity

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures by how callers must react to them.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	// KindConfiguration is fatal at startup or run start and never retried.
	KindConfiguration
	// KindValidation is a bad request from the caller.
	KindValidation
	// KindNotFound is the expected outcome for sparse data.
	KindNotFound
	// KindProvider is isolated to a single provider during fan-out.
	KindProvider
	// KindStorage fails an ingestion run and becomes internal on the query path.
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindProvider:
		return "provider"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// ErrorCode narrows validation and not-found errors.
type ErrorCode string

const (
	CodeMissingParameter    ErrorCode = "MissingParameter"
	CodeUnsupportedCurrency ErrorCode = "UnsupportedCurrency"
	CodeInvalidTimestamp    ErrorCode = "InvalidTimestamp"
	CodePriceNotFound       ErrorCode = "PriceNotFound"
)

// Error is the domain error type. Message is safe to show to a caller; Err carries
// the underlying cause and is only ever logged.
type Error struct {
	Kind    ErrorKind
	Code    ErrorCode
	Symbol  string
	At      time.Time
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// NewConfigurationError reports a missing credential or an empty provider registry.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewProviderError wraps a failure talking to a price provider.
func NewProviderError(provider string, err error) *Error {
	return &Error{Kind: KindProvider, Message: fmt.Sprintf("provider %s", provider), Err: err}
}

// NewStorageError wraps a failure in the price store.
func NewStorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// NewInternalError hides err behind a generic message.
func NewInternalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal Server Error", Err: err}
}

// ErrMissingParameter is returned when either currency is absent from a query.
func ErrMissingParameter() *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeMissingParameter,
		Message: "Missing required parameters: currency1, currency2",
	}
}

// ErrUnsupportedCurrency names the first symbol that is not allow-listed.
func ErrUnsupportedCurrency(symbol string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeUnsupportedCurrency,
		Symbol:  symbol,
		Message: fmt.Sprintf("Currency %s is not supported", symbol),
	}
}

// ErrInvalidTimestamp is returned when the target time does not parse.
func ErrInvalidTimestamp(raw string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidTimestamp,
		Message: "Invalid timestamp format",
		Err:     fmt.Errorf("unparseable timestamp %q", raw),
	}
}

// ErrPriceNotFound names the symbol that has no observation at or before at.
func ErrPriceNotFound(symbol string, at time.Time) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodePriceNotFound,
		Symbol:  symbol,
		At:      at,
		Message: fmt.Sprintf("No price data found for %s at or before %s", symbol, at.UTC().Format(time.RFC3339Nano)),
	}
}

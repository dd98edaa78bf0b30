package billing

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. Every error returned by the service wraps exactly one of them.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrUpstream        = errors.New("payment provider request failed")
	ErrPersistence     = errors.New("persistence failed")
	ErrNotConfigured   = errors.New("billing is not configured")
)

// Error is a classified billing failure. Title and Message are safe to show
// to users; Err is the underlying cause and is only logged.
type Error struct {
	Kind    error
	Title   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Title
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

var (
	ErrNoWorkspace = &Error{
		Kind:    ErrValidation,
		Title:   "No workspace found",
		Message: "You need a workspace before starting a checkout. Create a workspace first.",
	}
	ErrNoBillingCustomer = &Error{
		Kind:    ErrNotFound,
		Title:   "No billing customer found",
		Message: "You need to complete a checkout first before syncing subscriptions.",
	}
	ErrNoSubscription = &Error{
		Kind:    ErrNotFound,
		Title:   "No subscription found",
		Message: "This workspace has no active subscription.",
	}
	ErrNotWorkspaceMember = &Error{
		Kind:    ErrForbidden,
		Title:   "Forbidden",
		Message: "You are not a member of this workspace.",
	}
	ErrWorkspaceExists = &Error{
		Kind:    ErrValidation,
		Title:   "Workspace already exists",
		Message: "You already belong to a workspace.",
	}
)

const expectedPriceIDFormat = "price_xxxxx..."

// InvalidPriceIDError is returned when a checkout is requested with an id
// that is not a price id, typically a product id pasted into configuration.
type InvalidPriceIDError struct {
	ReceivedID string
}

func (e *InvalidPriceIDError) Error() string {
	return fmt.Sprintf("invalid price id %q: expected format %s", e.ReceivedID, expectedPriceIDFormat)
}

func (e *InvalidPriceIDError) Unwrap() error { return ErrValidation }

// ExpectedFormat describes what a valid price id looks like.
func (e *InvalidPriceIDError) ExpectedFormat() string { return expectedPriceIDFormat }

// Message is the user-facing explanation.
func (e *InvalidPriceIDError) Message() string {
	if strings.HasPrefix(e.ReceivedID, "prod_") {
		return "The configured ID is a product ID. Use the price ID of the product instead (starts with price_)."
	}
	return "The price ID must start with price_."
}

// InvalidSignatureError is returned when a webhook delivery fails signature
// verification. Nothing is persisted for such deliveries.
type InvalidSignatureError struct {
	Err error
}

func (e *InvalidSignatureError) Error() string {
	if e.Err == nil {
		return "invalid webhook signature"
	}
	return "invalid webhook signature: " + e.Err.Error()
}

func (e *InvalidSignatureError) Unwrap() error { return e.Err }

// Provider error codes set by Provider implementations.
const (
	ProviderCodeNoSuchPrice     = "no_such_price"
	ProviderCodeResourceMissing = "resource_missing"
	ProviderCodeInvalidRequest  = "invalid_request"
	ProviderCodeAPI             = "api_error"
)

// ProviderError wraps a failed payment provider call.
type ProviderError struct {
	Op   string
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

func persistenceError(op string, err error) error {
	return &Error{
		Kind:    ErrPersistence,
		Title:   "Database error",
		Message: "A database operation failed. Please try again.",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

func upstreamError(err error) error {
	return &Error{
		Kind:    ErrUpstream,
		Title:   "Payment provider error",
		Message: "The payment provider rejected the request. Please try again later.",
		Err:     err,
	}
}

// priceNotFoundError turns a provider "no such price" rejection into a
// validation error that names the configuration keys to check.
func priceNotFoundError(priceID string, configKeys []string, err error) error {
	msg := fmt.Sprintf("The price %s does not exist in the payment provider account.", priceID)
	if len(configKeys) > 0 {
		msg += " Check the " + strings.Join(configKeys, ", ") + " settings."
	}
	return &Error{
		Kind:    ErrValidation,
		Title:   "Invalid price configuration",
		Message: msg,
		Err:     err,
	}
}

// HTTPStatus maps an error returned by this package to a response status.
func HTTPStatus(err error) int {
	var sigErr *InvalidSignatureError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &sigErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

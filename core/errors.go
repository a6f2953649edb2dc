package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CheckoutErrorBadInput        = "CHECKOUT_BAD_INPUT"
	CheckoutErrorInvalidResponse = "CHECKOUT_INVALID_RESPONSE"
	CheckoutErrorNotFound        = "CHECKOUT_NOT_FOUND"
	CheckoutErrorStateConflict   = "CHECKOUT_STATE_CONFLICT"
	CheckoutErrorStoreFailed     = "CHECKOUT_STORE_FAILED"
	CheckoutErrorInternal        = "CHECKOUT_INTERNAL_ERROR"
)

func checkoutErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureCheckoutErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrInvalidResponse):
		return newCheckoutError(err.Error(), goerrors.CategoryBadInput, CheckoutErrorInvalidResponse)
	case errors.Is(err, ErrUnknownResultCode):
		return newCheckoutError(err.Error(), goerrors.CategoryBadInput, CheckoutErrorInvalidResponse)
	case errors.Is(err, ErrStateDataNotFound), errors.Is(err, ErrPaymentEventNotFound):
		return newCheckoutError(err.Error(), goerrors.CategoryNotFound, CheckoutErrorNotFound)
	case errors.Is(err, ErrInvalidOrderStateTransition):
		return newCheckoutError(err.Error(), goerrors.CategoryConflict, CheckoutErrorStateConflict)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newCheckoutError(err.Error(), goerrors.CategoryNotFound, CheckoutErrorNotFound)
	case strings.Contains(msg, "persist"), strings.Contains(msg, "store"):
		return newCheckoutError(err.Error(), goerrors.CategoryOperation, CheckoutErrorStoreFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newCheckoutError(err.Error(), goerrors.CategoryBadInput, CheckoutErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureCheckoutErrorEnvelope(mapped)
}

func newCheckoutError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureCheckoutErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureCheckoutErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = checkoutHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultCheckoutTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultCheckoutTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return CheckoutErrorBadInput
	case goerrors.CategoryNotFound:
		return CheckoutErrorNotFound
	case goerrors.CategoryConflict:
		return CheckoutErrorStateConflict
	case goerrors.CategoryOperation:
		return CheckoutErrorStoreFailed
	default:
		return CheckoutErrorInternal
	}
}

func checkoutHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

package kream

import (
	"errors"
	"fmt"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
)

var (
	ErrLinkNotFound     = errors.New("product link not found")
	ErrPriceNotFound    = errors.New("main price not found")
	// ErrInvalidPriceText means a candidate matched the price pattern but
	// could not be parsed into an amount.
	ErrInvalidPriceText = errors.New("invalid price text")
)

// FetchError is a classified pipeline failure.
type FetchError struct {
	Kind        ErrorKind
	Message     string
	Diagnostics Diagnostics
	Cause       error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

var messages = map[ErrorKind]string{
	KindTimeout:          "Connection timed out, please try again later",
	KindBlockedByOrigin:  "The site refused the request (blocked status with an empty page); the server IP is likely restricted",
	KindNoSearchResults:  "No products found for this model",
	KindExtractionFailed: "Could not find the product or its main price; the page layout may have changed or the item has no listed price",
	KindUncategorized:    "Fetch failed",
}

// Message is the user-facing text for kind.
func Message(kind ErrorKind) string {
	if msg, ok := messages[kind]; ok {
		return msg
	}
	return messages[KindUncategorized]
}

func newFetchError(kind ErrorKind, cause error, diag Diagnostics) *FetchError {
	return &FetchError{
		Kind:        kind,
		Message:     Message(kind),
		Diagnostics: diag,
		Cause:       cause,
	}
}

// classify turns any error into a FetchError. Only uncategorized failures
// carry the raw error text in their message.
func classify(err error, diag Diagnostics) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if browser.IsTimeout(err) {
		return newFetchError(KindTimeout, err, diag)
	}

	fe = newFetchError(KindUncategorized, err, diag)
	fe.Message = fmt.Sprintf("%s: %v", Message(KindUncategorized), err)
	return fe
}

package errors

import (
	"fmt"
	"time"
)

type ErrorCode string

const (
	ErrCodeConversationLoadFailed ErrorCode = "CONVERSATION_LOAD_FAILED"
	ErrCodeConversationSaveFailed ErrorCode = "CONVERSATION_SAVE_FAILED"

	ErrCodeCatalogQueryFailed ErrorCode = "CATALOG_QUERY_FAILED"
	ErrCodeCatalogQueryTimeout ErrorCode = "CATALOG_QUERY_TIMEOUT"
	ErrCodeProductNotFound     ErrorCode = "PRODUCT_NOT_FOUND"
	ErrCodeProductLinkMissing  ErrorCode = "PRODUCT_LINK_MISSING"

	ErrCodeSearchQueryFailed ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout     ErrorCode = "SEARCH_TIMEOUT"

	ErrCodeResolverCallFailed    ErrorCode = "RESOLVER_CALL_FAILED"
	ErrCodeResolverTimeout       ErrorCode = "RESOLVER_TIMEOUT"
	ErrCodeResolverInvalidAnswer ErrorCode = "RESOLVER_INVALID_ANSWER"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeLinkTrackingFailed     ErrorCode = "LINK_TRACKING_FAILED"
)

// StandardError is the structured error every common package returns upward.
// Retryable distinguishes degraded dependencies from permanent misses.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func NewConversationLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeConversationLoadFailed,
		Message:   "Failed to load conversation state",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewConversationSaveFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeConversationSaveFailed,
		Message:   "Failed to persist conversation state",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewCatalogQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCatalogQueryFailed,
		Message:   "Catalog query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewProductNotFoundError(productID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProductNotFound,
		Message:   "Product not found in catalog",
		Details:   productID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewProductLinkMissingError(productID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProductLinkMissing,
		Message:   "Sellable product has no marketplace link",
		Details:   productID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewResolverCallFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeResolverCallFailed,
		Message:   "AI fallback call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotificationSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Staff notification dispatch failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

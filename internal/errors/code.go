package errors

import (
	"fmt"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Billing service error code definitions.
// Code format: SSMMEE (6 digits), SS=14 for clinic-billing-service.
// Modules:
//   01: webhook ingestion
//   02: reconciliation
//   03: audit log

// Webhook ingestion (140100-140199)
const (
	// ErrCodeMissingSignature signature header absent on the inbound request
	ErrCodeMissingSignature = 140101
	// ErrCodeInvalidSignature signature verification failed for the raw body
	ErrCodeInvalidSignature = 140102
	// ErrCodeEventNotRecorded durable pre-log write failed; event was not accepted
	ErrCodeEventNotRecorded = 140103
)

// Reconciliation (140200-140299)
const (
	// ErrCodeUserNotFound no local user matches the checkout customer email
	ErrCodeUserNotFound = 140201
	// ErrCodeSubscriptionNotFound no subscription status row for the customer
	ErrCodeSubscriptionNotFound = 140202
	// ErrCodeProviderLookupFailed the payment provider rejected a subscription fetch
	ErrCodeProviderLookupFailed = 140203
	// ErrCodeDirectoryUnavailable the user directory collaborator is unreachable
	ErrCodeDirectoryUnavailable = 140204
)

// Audit log (140300-140399)
const (
	// ErrCodeLogNotFound no webhook log row for the given event id
	ErrCodeLogNotFound = 140301
)

// Reasons carried on the kratos error for machine matching.
const (
	ReasonMissingSignature     = "MISSING_SIGNATURE"
	ReasonInvalidSignature     = "INVALID_SIGNATURE"
	ReasonEventNotRecorded     = "EVENT_NOT_RECORDED"
	ReasonUserNotFound         = "USER_NOT_FOUND"
	ReasonSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	ReasonProviderLookupFailed = "PROVIDER_LOOKUP_FAILED"
	ReasonDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"
	ReasonLogNotFound          = "LOG_NOT_FOUND"
)

var reasonByCode = map[int]string{
	ErrCodeMissingSignature:     ReasonMissingSignature,
	ErrCodeInvalidSignature:     ReasonInvalidSignature,
	ErrCodeEventNotRecorded:     ReasonEventNotRecorded,
	ErrCodeUserNotFound:         ReasonUserNotFound,
	ErrCodeSubscriptionNotFound: ReasonSubscriptionNotFound,
	ErrCodeProviderLookupFailed: ReasonProviderLookupFailed,
	ErrCodeDirectoryUnavailable: ReasonDirectoryUnavailable,
	ErrCodeLogNotFound:          ReasonLogNotFound,
}

// NewBizError builds a kratos error carrying the service error code.
func NewBizError(code int, format string, args ...any) *kerrors.Error {
	reason := reasonByCode[code]
	if reason == "" {
		reason = "UNKNOWN"
	}
	return kerrors.New(code, reason, fmt.Sprintf(format, args...))
}

// IsCode reports whether err carries the given service error code.
func IsCode(err error, code int) bool {
	if err == nil {
		return false
	}
	return kerrors.FromError(err).Code == int32(code)
}

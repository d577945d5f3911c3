// Package ledgererr holds the error taxonomy shared by the account store,
// campaign escrow and action processor. Every sentinel is an errutil.BaseError
// so the transport layers can map it without knowing the domain.
package ledgererr

import (
	"errors"

	"engagement-ledger/pkg/errutil"
)

const (
	ReasonInvalidArgument     = "INVALID_ARGUMENT"
	ReasonInsufficientBalance = "INSUFFICIENT_BALANCE"
	ReasonUnauthorized        = "UNAUTHORIZED"
	ReasonInvalidTransition   = "INVALID_TRANSITION"
	ReasonSelfAction          = "SELF_ACTION"
	ReasonNotVerified         = "NOT_VERIFIED"
	ReasonAlreadyPerformed    = "ALREADY_PERFORMED"
	ReasonCampaignExhausted   = "CAMPAIGN_EXHAUSTED"
	ReasonCampaignHasActions  = "CAMPAIGN_HAS_ACTIONS"
	ReasonNotFound            = "NOT_FOUND"
	ReasonUnavailable         = "UNAVAILABLE"
)

var (
	ErrInvalidArgument     = sentinel(errutil.StatusBadRequest, ReasonInvalidArgument, "invalid argument")
	ErrInsufficientBalance = sentinel(errutil.StatusUnprocessableEntity, ReasonInsufficientBalance, "insufficient balance")
	ErrUnauthorized        = sentinel(errutil.StatusForbidden, ReasonUnauthorized, "caller does not own this campaign")
	ErrInvalidTransition   = sentinel(errutil.StatusConflict, ReasonInvalidTransition, "status transition not allowed")
	ErrSelfAction          = sentinel(errutil.StatusUnprocessableEntity, ReasonSelfAction, "owners cannot act on their own campaign")
	ErrNotVerified         = sentinel(errutil.StatusUnprocessableEntity, ReasonNotVerified, "action was not verified")
	ErrAlreadyPerformed    = sentinel(errutil.StatusConflict, ReasonAlreadyPerformed, "action already rewarded")
	ErrCampaignExhausted   = sentinel(errutil.StatusConflict, ReasonCampaignExhausted, "campaign is not accepting actions")
	ErrCampaignHasActions  = sentinel(errutil.StatusConflict, ReasonCampaignHasActions, "campaign already has actions")
	ErrNotFound            = sentinel(errutil.StatusNotFound, ReasonNotFound, "not found")
	ErrUnavailable         = sentinel(errutil.StatusServiceUnavailable, ReasonUnavailable, "storage unavailable, retry later")
)

func sentinel(code errutil.CoreStatus, reason, msg string) errutil.BaseError {
	return errutil.BaseError{Code: code, Reason: reason, Message: msg}
}

// Wrap returns a copy of the sentinel with a request specific message and
// optional field details. errors.Is still matches the sentinel.
func Wrap(base errutil.BaseError, msg string, details ...errutil.Detail) error {
	out := base
	if msg != "" {
		out.Message = msg
	}
	if len(details) > 0 {
		out.Details = details
	}
	return out
}

// InvalidArgument reports a malformed request field.
func InvalidArgument(field, msg string) error {
	return Wrap(ErrInvalidArgument, "invalid argument: "+field, errutil.Detail{Field: field, Message: msg})
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) error {
	return Wrap(ErrNotFound, kind+" "+id+" not found")
}

// Unavailable wraps a storage error that survived the retry budget.
func Unavailable(cause error) error {
	out := ErrUnavailable
	out.Err = cause
	return out
}

// Reason extracts the taxonomy reason from err, or "" for unclassified errors.
func Reason(err error) string {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be.Reason
	}
	return ""
}

// IsDomain reports whether err belongs to the ledger taxonomy, i.e. is a
// terminal outcome that must reach the caller unchanged.
func IsDomain(err error) bool {
	return Reason(err) != ""
}

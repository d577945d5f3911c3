package ledgererr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"engagement-ledger/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestWrappedSentinelsStillMatch(t *testing.T) {
	err := fmt.Errorf("submit: %w", Wrap(ErrAlreadyPerformed, "performer already viewed this video"))

	require.ErrorIs(t, err, ErrAlreadyPerformed)
	require.NotErrorIs(t, err, ErrCampaignExhausted)
	require.Equal(t, ReasonAlreadyPerformed, Reason(err))
	require.True(t, IsDomain(err))
}

func TestInvalidArgumentCarriesField(t *testing.T) {
	err := InvalidArgument("credits_per_action", "must be a positive integer")

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Len(t, be.Details, 1)
	require.Equal(t, "credits_per_action", be.Details[0].Field)
	require.Equal(t, http.StatusBadRequest, be.Code.HTTPStatus())
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := Unavailable(cause)

	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, cause)
}

func TestHTTPStatuses(t *testing.T) {
	for _, tc := range []struct {
		err  errutil.BaseError
		want int
	}{
		{ErrInvalidArgument, http.StatusBadRequest},
		{ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{ErrUnauthorized, http.StatusForbidden},
		{ErrInvalidTransition, http.StatusConflict},
		{ErrSelfAction, http.StatusUnprocessableEntity},
		{ErrNotVerified, http.StatusUnprocessableEntity},
		{ErrAlreadyPerformed, http.StatusConflict},
		{ErrCampaignExhausted, http.StatusConflict},
		{ErrCampaignHasActions, http.StatusConflict},
		{ErrNotFound, http.StatusNotFound},
		{ErrUnavailable, http.StatusServiceUnavailable},
	} {
		require.Equal(t, tc.want, tc.err.Code.HTTPStatus(), tc.err.Reason)
	}
}

func TestReasonOfPlainError(t *testing.T) {
	require.Equal(t, "", Reason(errors.New("boom")))
	require.False(t, IsDomain(nil))
}

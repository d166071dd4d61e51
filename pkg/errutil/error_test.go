package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestBaseErrorUnwrapAndReason(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("issue: %w", Internal("failed to store artifact", cause, WithReason("persistence_error")))

	require.ErrorIs(t, err, cause)
	require.Equal(t, "persistence_error", ReasonOf(err))
	require.Equal(t, StatusInternal, CodeOf(err))
	require.Contains(t, err.Error(), "disk full")
}

func TestCodeOfPlainError(t *testing.T) {
	require.Equal(t, StatusInternal, CodeOf(errors.New("boom")))
	require.Empty(t, ReasonOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusNotFound, StatusNotFound.HTTPStatus())
	require.Equal(t, http.StatusPreconditionFailed, StatusPreconditionFailed.HTTPStatus())
	require.Equal(t, http.StatusBadRequest, StatusValidationFailed.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, CoreStatus("whatever").HTTPStatus())
}

func TestToGRPCError(t *testing.T) {
	require.Nil(t, ToGRPCError(nil))
	require.Equal(t, codes.FailedPrecondition, status.Code(ToGRPCError(PreconditionFailed("payment required", nil))))
	require.Equal(t, codes.Canceled, status.Code(ToGRPCError(context.Canceled)))
	require.Equal(t, codes.Internal, status.Code(ToGRPCError(errors.New("boom"))))
}

package licence

import (
	"errors"

	"licensing-controlplane/pkg/errutil"
)

// Reasons carried by every error this package returns.
const (
	ReasonValidation         = "validation_error"
	ReasonNotFound           = "not_found"
	ReasonPrecondition       = "precondition_failed"
	ReasonKeyManagement      = "key_management_error"
	ReasonSigning            = "signing_error"
	ReasonDocument           = "document_generation_error"
	ReasonPersistence        = "persistence_error"
	ReasonNumberingExhausted = "licence_number_exhausted"
)

var (
	ErrKeyNotFound      = errors.New("signing key not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrLicenceNotFound  = errors.New("licence not found")
)

func ValidationError(msg string, err error, details ...errutil.Detail) error {
	opts := []errutil.Option{errutil.WithReason(ReasonValidation)}
	if len(details) > 0 {
		opts = append(opts, errutil.WithDetails(details...))
	}
	return errutil.ValidationFailed(msg, err, opts...)
}

func NotFoundError(msg string, err error) error {
	return errutil.NotFound(msg, err, errutil.WithReason(ReasonNotFound))
}

func PreconditionFailedError(msg string, err error) error {
	return errutil.PreconditionFailed(msg, err, errutil.WithReason(ReasonPrecondition))
}

func KeyManagementError(msg string, err error) error {
	return errutil.Internal(msg, err, errutil.WithReason(ReasonKeyManagement))
}

func SigningError(msg string, err error) error {
	return errutil.Internal(msg, err, errutil.WithReason(ReasonSigning))
}

func PersistenceError(msg string, err error) error {
	return errutil.Internal(msg, err, errutil.WithReason(ReasonPersistence))
}

func NumberingExhaustedError(msg string, err error) error {
	return errutil.Conflict(msg, err, errutil.WithReason(ReasonNumberingExhausted))
}

func DocumentGenerationError(msg string, err error) error {
	return errutil.Internal(msg, err, errutil.WithReason(ReasonDocument))
}

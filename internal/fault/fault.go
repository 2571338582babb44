// Package fault - error instances
//
// Provides single instances of errors grouped by class so callers can
// branch on the class without partial string matches.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// error base
type GenericError string

// classes of errors
type UnauthenticatedError GenericError
type ForbiddenError GenericError
type NotFoundError GenericError
type InvalidError GenericError
type ConflictError GenericError
type DependencyError GenericError

// TransitionError is returned for a status change the transition table does not allow.
type TransitionError struct {
	From string
	To   string
}

// common errors - keep in alphabetic order
var (
	ErrDeliveryNotFound     = NotFoundError("delivery not found")
	ErrEmptyFile            = InvalidError("file is empty")
	ErrForbidden            = ForbiddenError("you do not have permission to access this resource")
	ErrIdentityRequired     = UnauthenticatedError("authentication is required")
	ErrInvalidCredentials   = UnauthenticatedError("invalid email or password")
	ErrInvalidDateRange     = InvalidError("from and to must be RFC 3339 timestamps, from before to")
	ErrInvalidDeliveryType  = InvalidError("invalid delivery type")
	ErrInvalidEstimatedTime = InvalidError("estimated delivery must be in the future")
	ErrInvalidIssueType     = InvalidError("invalid issue type")
	ErrInvalidLimit         = InvalidError("limit must be a positive number")
	ErrInvalidPhoto         = InvalidError("photo must be an image")
	ErrInvalidStatus        = InvalidError("invalid delivery status")
	ErrLedgerRead           = DependencyError("ledger read failed")
	ErrLedgerUnavailable    = DependencyError("ledger is not configured")
	ErrLedgerWrite          = DependencyError("ledger write failed")
	ErrMissingPIIHash       = InvalidError("delivery has no pii hash")
	ErrPhotoUpload          = DependencyError("photo upload failed")
	ErrPIIHash              = DependencyError("pii hashing failed")
	ErrPropertyNotFound     = NotFoundError("property not found")
	ErrRecipientRequired    = InvalidError("recipient name is required")
	ErrRequiredDescription  = InvalidError("description is required")
	ErrRequiredProperty     = InvalidError("property id is required")
	ErrRequiredSender       = InvalidError("sender name is required")
	ErrStatusConflict       = ConflictError("delivery was modified concurrently, reload and retry")
	ErrStorageUnavailable   = DependencyError("file storage is not configured")
	ErrUnitNotFound         = NotFoundError("unit not found")
	ErrUnitPropertyMismatch = InvalidError("unit does not belong to the delivery's property")
	ErrUserNotFound         = NotFoundError("user not found")
)

func (e UnauthenticatedError) Error() string { return string(e) }
func (e ForbiddenError) Error() string       { return string(e) }
func (e NotFoundError) Error() string        { return string(e) }
func (e InvalidError) Error() string         { return string(e) }
func (e ConflictError) Error() string        { return string(e) }
func (e DependencyError) Error() string      { return string(e) }

func (e TransitionError) Error() string {
	return fmt.Sprintf("Invalid status transition from %s to %s", e.From, e.To)
}

// determine the class of an error, looking through wrapping
func IsErrUnauthenticated(e error) bool { var t UnauthenticatedError; return errors.As(e, &t) }
func IsErrForbidden(e error) bool       { var t ForbiddenError; return errors.As(e, &t) }
func IsErrNotFound(e error) bool        { var t NotFoundError; return errors.As(e, &t) }
func IsErrInvalid(e error) bool         { var t InvalidError; return errors.As(e, &t) }
func IsErrConflict(e error) bool        { var t ConflictError; return errors.As(e, &t) }
func IsErrDependency(e error) bool      { var t DependencyError; return errors.As(e, &t) }
func IsErrTransition(e error) bool      { var t TransitionError; return errors.As(e, &t) }

// HTTPStatus maps an error class onto the response code used by the web handlers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsErrUnauthenticated(err):
		return http.StatusUnauthorized
	case IsErrForbidden(err):
		return http.StatusForbidden
	case IsErrNotFound(err):
		return http.StatusNotFound
	case IsErrTransition(err):
		return http.StatusUnprocessableEntity
	case IsErrInvalid(err):
		return http.StatusBadRequest
	case IsErrConflict(err):
		return http.StatusConflict
	case IsErrDependency(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

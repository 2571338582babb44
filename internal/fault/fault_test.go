package fault_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"property-delivery-api-server/internal/fault"
)

func TestClasses(t *testing.T) {
	errorList := []struct {
		err        error
		notFound   bool
		invalid    bool
		conflict   bool
		transition bool
	}{
		{fault.ErrDeliveryNotFound, true, false, false, false},
		{fault.ErrUnitPropertyMismatch, false, true, false, false},
		{fault.ErrStatusConflict, false, false, true, false},
		{fault.TransitionError{From: "collected", To: "arrived"}, false, false, false, true},
		{fmt.Errorf("load: %w", fault.ErrPropertyNotFound), true, false, false, false},
	}

	for i, e := range errorList {
		assert.Equal(t, e.notFound, fault.IsErrNotFound(e.err), "%d: wrong not found class", i)
		assert.Equal(t, e.invalid, fault.IsErrInvalid(e.err), "%d: wrong invalid class", i)
		assert.Equal(t, e.conflict, fault.IsErrConflict(e.err), "%d: wrong conflict class", i)
		assert.Equal(t, e.transition, fault.IsErrTransition(e.err), "%d: wrong transition class", i)
	}
}

func TestTransitionMessage(t *testing.T) {
	err := fault.TransitionError{From: "collected", To: "arrived"}
	assert.Equal(t, "Invalid status transition from collected to arrived", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, fault.HTTPStatus(fault.ErrIdentityRequired))
	assert.Equal(t, http.StatusForbidden, fault.HTTPStatus(fault.ErrForbidden))
	assert.Equal(t, http.StatusNotFound, fault.HTTPStatus(fmt.Errorf("x: %w", fault.ErrUnitNotFound)))
	assert.Equal(t, http.StatusBadRequest, fault.HTTPStatus(fault.ErrInvalidEstimatedTime))
	assert.Equal(t, http.StatusUnprocessableEntity, fault.HTTPStatus(fault.TransitionError{From: "a", To: "b"}))
	assert.Equal(t, http.StatusConflict, fault.HTTPStatus(fault.ErrStatusConflict))
	assert.Equal(t, http.StatusBadGateway, fault.HTTPStatus(fault.ErrLedgerWrite))
	assert.Equal(t, http.StatusInternalServerError, fault.HTTPStatus(fmt.Errorf("boom")))
}

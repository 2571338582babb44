package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-delivery-api-server/internal/fault"
)

func testContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestRespondErrorUsesClassStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fault.ErrDeliveryNotFound, http.StatusNotFound},
		{fault.ErrForbidden, http.StatusForbidden},
		{fault.TransitionError{From: "collected", To: "arrived"}, http.StatusUnprocessableEntity},
		{fault.ErrStatusConflict, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, w := testContext("/")
		respondError(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.err.Error(), body["error"])
	}
}

func TestRespondMobileAlwaysOK(t *testing.T) {
	c, w := testContext("/")
	respondMobile(c, fault.ErrForbidden, gin.H{"delivery": nil})
	assert.Equal(t, http.StatusOK, w.Code)
	var failed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	assert.Equal(t, false, failed["success"])
	assert.Equal(t, fault.ErrForbidden.Error(), failed["message"])
	assert.NotContains(t, failed, "delivery")

	c, w = testContext("/")
	respondMobile(c, nil, gin.H{"delivery": gin.H{"id": "abc"}})
	var ok map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ok))
	assert.Equal(t, true, ok["success"])
	assert.Contains(t, ok, "delivery")
}

func TestQueryParsing(t *testing.T) {
	c, _ := testContext("/?limit=5&from=2026-01-02T03:04:05Z")
	limit, err := queryLimit(c)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)
	from, err := queryTime(c, "from")
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Equal(t, 2026, from.Year())
	to, err := queryTime(c, "to")
	require.NoError(t, err)
	assert.Nil(t, to)

	c, _ = testContext("/?limit=0&from=last-week")
	_, err = queryLimit(c)
	assert.Equal(t, fault.ErrInvalidLimit, err)
	_, err = queryTime(c, "from")
	assert.Equal(t, fault.ErrInvalidDateRange, err)
}

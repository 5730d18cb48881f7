package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorStatuses(t *testing.T) {
	domain := errors.New("Insufficient permissions for method reset")
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{Classify(ErrForbidden, domain), http.StatusForbidden, domain.Error()},
		{Classify(ErrNotFound, errors.New("no such method")), http.StatusNotFound, "no such method"},
		{Classify(ErrConflict, errors.New("already deployed")), http.StatusConflict, "already deployed"},
		{Classify(ErrValidation, errors.New("bad args")), http.StatusBadRequest, "bad args"},
		{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
		assert.Equal(t, tc.detail, body.Detail)
	}
}

func TestClassifyKeepsChain(t *testing.T) {
	domain := errors.New("domain")
	err := Classify(ErrForbidden, domain)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, domain)
	assert.Nil(t, Classify(ErrForbidden, nil))
}

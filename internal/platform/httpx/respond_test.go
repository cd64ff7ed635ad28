package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{fmt.Errorf("%w: dateRange", ErrValidation), http.StatusBadRequest, "validation failed: dateRange"},
		{ErrNotFound, http.StatusNotFound, "resource not found"},
		{errors.New("pq: password authentication failed"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
		assert.Equal(t, tc.detail, body.Detail)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	decode := func(body string) (payload, error) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var p payload
		err := DecodeJSON(httptest.NewRecorder(), req, &p)
		return p, err
	}

	p, err := decode(`{"name":"ok"}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", p.Name)

	for _, body := range []string{`{"name":`, `{"other":1}`, `{"name":"a"}{"name":"b"}`, ``} {
		_, err := decode(body)
		assert.ErrorIs(t, err, ErrValidation, body)
	}
}

func TestDecodeOptionalJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	chunked := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	chunked.ContentLength = -1
	var p payload
	require.NoError(t, DecodeOptionalJSON(httptest.NewRecorder(), chunked, &p))
	assert.Empty(t, p.Name)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, DecodeOptionalJSON(httptest.NewRecorder(), req, &p))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeOptionalJSON(httptest.NewRecorder(), req, &p))
	assert.Equal(t, "ok", p.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"other":1}`))
	assert.ErrorIs(t, DecodeOptionalJSON(httptest.NewRecorder(), req, &p), ErrValidation)
}

package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCustom = errors.New("custom error")

func customMapper(err error) (Error, bool) {
	if errors.Is(err, errCustom) {
		return NewHTTPError(http.StatusBadRequest, errCustom.Error()), true
	}
	return nil, false
}

func Test_ErrorMapper(t *testing.T) {
	router := New(WithErrorMapper(customMapper))

	tcs := []struct {
		name string
		err  error
		exp  Error
	}{
		{
			name: "mapped",
			err:  errCustom,
			exp:  NewHTTPError(http.StatusBadRequest, "custom error"),
		},
		{
			name: "mapped through wrapping",
			err:  fmt.Errorf("handler: %w", errCustom),
			exp:  NewHTTPError(http.StatusBadRequest, "custom error"),
		},
		{
			name: "unmapped",
			err:  errors.New("random error"),
			exp:  DefaultError,
		},
		{
			name: "api error",
			err:  NewHTTPError(http.StatusConflict, "API Error"),
			exp:  NewHTTPError(http.StatusConflict, "API Error"),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, router.mapError(tc.err))
		})
	}
}

func Test_SubRouterSharesMappers(t *testing.T) {
	router := New()
	router.Route("/api", func(r *Router) {
		r.Get("/fail", func(w http.ResponseWriter, r *http.Request) error {
			return errCustom
		})
	})
	// registered after the sub router was built
	router.RegisterErrorMapper(customMapper)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fail", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body HTTPError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "custom error", body.Message)
}

func Test_HTTPErrorBody(t *testing.T) {
	router := New()
	router.Get("/missing", func(w http.ResponseWriter, r *http.Request) error {
		return NewHTTPError(http.StatusNotFound, "room not found")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"code":404,"error":"room not found"}`, rec.Body.String())
}

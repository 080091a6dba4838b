package chatroom

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/putto11262002/chatroom/core"
	"github.com/putto11262002/chatroom/pkg/router"
)

var kindStatus = map[core.ErrorKind]int{
	core.KindValidation: http.StatusBadRequest,
	core.KindNotFound:   http.StatusNotFound,
	// a join or leave on a direct room is reported as a bad request
	core.KindInvalidOperation: http.StatusBadRequest,
	core.KindConflict:         http.StatusConflict,
	core.KindUnauthorized:     http.StatusUnauthorized,
	core.KindForbidden:        http.StatusForbidden,
	core.KindCreationFailed:   http.StatusInternalServerError,
}

// mapCoreError turns a *core.Error anywhere in the chain into a JSON error
// carrying its client safe message.
func mapCoreError(err error) (router.Error, bool) {
	var cerr *core.Error
	if !errors.As(err, &cerr) {
		return nil, false
	}
	status, ok := kindStatus[cerr.Kind]
	if !ok {
		return nil, false
	}
	return router.NewHTTPError(status, cerr.Message()), true
}

// mapDecodeError reports malformed request bodies as bad requests.
func mapDecodeError(err error) (router.Error, bool) {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return router.NewHTTPError(http.StatusBadRequest, "malformed request body"), true
	}
	return nil, false
}

// decodeJSON decodes the request body into v and validates it.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return core.ValidationError("%s", validationMessage(err))
	}
	return nil
}

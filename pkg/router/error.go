package router

import (
	"encoding/json"
	"io"
)

// Error is an error that knows how to render itself as an HTTP response.
type Error interface {
	error
	StatusCode() int
	Encode(w io.Writer) error
}

// HTTPError is the body every failed API call answers with:
//
//	{"code": 404, "error": "room not found"}
type HTTPError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func NewHTTPError(code int, message string) HTTPError {
	return HTTPError{Code: code, Message: message}
}

func (e HTTPError) StatusCode() int {
	return e.Code
}

func (e HTTPError) Error() string {
	return e.Message
}

func (e HTTPError) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}

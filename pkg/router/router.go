package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"runtime"

	"github.com/go-chi/chi/v5"
)

// DefaultError answers any error no mapper recognises.
var DefaultError = NewHTTPError(http.StatusInternalServerError, "internal server error")

// Router is a wrapper around chi.Router that provides error handling.
// Handlers can return an error that will then get mapped to an error response.
// Error mappers are tried in registration order; sub routers created with
// Route, Group and With share the mappers of their parent.
type Router struct {
	chi.Router
	shared *shared
}

type shared struct {
	errorMappers []ErrorMapper
	defaultError HTTPError
	logger       *slog.Logger
}

func New(opts ...RouterOption) *Router {
	router := &Router{
		Router: chi.NewRouter(),
		shared: &shared{
			defaultError: DefaultError,
			logger:       slog.New(slog.NewTextHandler(os.Stderr, nil)),
		},
	}

	for _, opt := range opts {
		opt(router)
	}
	return router
}

type RouterOption func(*Router)

func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.shared.logger = logger
	}
}

func WithErrorMapper(fn ErrorMapper) RouterOption {
	return func(r *Router) {
		r.shared.errorMappers = append(r.shared.errorMappers, fn)
	}
}

func (a *Router) child(r chi.Router) *Router {
	return &Router{Router: r, shared: a.shared}
}

// HandlerFunc is a function that handles an HTTP request and returns an error.
// When the handler fails to handler to request it should not write anything to the response writer
// instead it should return an error that will be mapped to an error response.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type Middleware func(http.Handler) HandlerFunc

// ErrorMapper maps a go error to an API error. It returns false if it does not handle err.
type ErrorMapper func(error) (Error, bool)

func (a *Router) RegisterErrorMapper(fn ErrorMapper) {
	a.shared.errorMappers = append(a.shared.errorMappers, fn)
}

// mapError maps a go error to an API error.
// The mapping works as following:
//   - if an HTTPError is in the error chain it is returned as is.
//   - otherwise the first error mapper that handles the error wins.
//   - if no error mapper handles it the default error is returned.
func (a *Router) mapError(err error) Error {
	var apiErr HTTPError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	for _, fn := range a.shared.errorMappers {
		if mapped, ok := fn(err); ok {
			return mapped
		}
	}
	return a.shared.defaultError
}

func (a *Router) handleWithErr(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err != nil {
			handlerFn := runtime.FuncForPC(reflect.ValueOf(h).Pointer())
			resError := a.mapError(err)
			if resError.StatusCode() >= http.StatusInternalServerError {
				a.shared.logger.Error(err.Error(), slog.String("handler", handlerFn.Name()))
			} else {
				a.shared.logger.Debug(err.Error(), slog.String("handler", handlerFn.Name()))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resError.StatusCode())
			if err := resError.Encode(w); err != nil {
				a.shared.logger.Error(err.Error())
			}
		}
	}
}

func (a *Router) Get(path string, h HandlerFunc) {
	a.Router.Get(path, a.handleWithErr(h))
}

func (a *Router) Post(path string, h HandlerFunc) {
	a.Router.Post(path, a.handleWithErr(h))
}

func (a *Router) Put(path string, h HandlerFunc) {
	a.Router.Put(path, a.handleWithErr(h))
}

func (a *Router) Delete(path string, h HandlerFunc) {
	a.Router.Delete(path, a.handleWithErr(h))
}

func (a *Router) Route(path string, f func(r *Router)) {
	a.Router.Route(path, func(r chi.Router) {
		f(a.child(r))
	})
}

func (a *Router) Group(f func(r *Router)) *Router {
	ch := a.Router.Group(func(r chi.Router) {
		f(a.child(r))
	})
	return a.child(ch)
}

func (a *Router) Use(middleware Middleware) {
	a.Router.Use(func(h http.Handler) http.Handler {
		return a.handleWithErr(middleware(h))
	})
}

func (a *Router) With(middleware Middleware) *Router {
	ch := a.Router.With(func(h http.Handler) http.Handler {
		return a.handleWithErr(middleware(h))
	})
	return a.child(ch)
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

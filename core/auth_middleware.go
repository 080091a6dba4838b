package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/putto11262002/chatroom/pkg/router"
)

const (
	key            sessionKey = "session"
	AuthCookieName            = "auth_token"
)

type sessionKey = string

func ContextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, key, session)
}

func sessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(key).(Session)
	return session, ok
}

// SessionFromRequest extracts the session from the request context.
// It must be called in handlers that are protected by the JWTMiddleware.
// It panics if the session is not found in the request context.
func SessionFromRequest(r *http.Request) Session {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		panic("session not found in request context: call this function in handlers that are protected by JWTMiddleware")
	}
	return session
}

func SessionCookie(session Session, httpOnly bool, path string) *http.Cookie {
	return &http.Cookie{
		Name:     AuthCookieName,
		Value:    session.Token,
		Expires:  session.ExpiresAt,
		HttpOnly: httpOnly,
		Path:     path,
	}
}

// tokenFromRequest reads a bearer token from the Authorization header,
// falling back to the auth cookie. Browsers cannot set headers on a
// websocket handshake, so the cookie is the only option there.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	cookie, err := r.Cookie(AuthCookieName)
	if err != nil || cookie.Valid() != nil {
		return ""
	}
	return cookie.Value
}

// JWTMiddleware extracts the JWT token from the request and validates it and attaches the session to the request context.
// The session is guaranteed to be attached to the request context if the JWT token is valid for subsequent handlers.
func JWTMiddleware(a AuthStore) router.Middleware {
	return func(next http.Handler) router.HandlerFunc {
		authErr := router.NewHTTPError(http.StatusUnauthorized, ErrUnauthenticated.Message())

		return router.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
			token := tokenFromRequest(r)
			if token == "" {
				return authErr
			}

			session, err := a.Session(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					return authErr
				}
				return err
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), *session)))
			return nil
		})
	}
}

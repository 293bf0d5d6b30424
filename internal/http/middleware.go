package http

import (
	"context"
	"net/http"

	"kovara/internal/core"
)

type sessionUserKey struct{}

// withSession authenticates the request via the session cookie and puts the
// user in the request context. Requests without a valid session get 401.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Sign in to access this resource.")
			return
		}

		user, err := s.users.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			s.clearSessionCookie(w)
			writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionUserKey{}, user)
		next(w, r.WithContext(ctx))
	}
}

// sessionUser returns the authenticated user placed by withSession.
func sessionUser(r *http.Request) core.User {
	user, _ := r.Context().Value(sessionUserKey{}).(core.User)
	return user
}

// sessionToken returns the raw session cookie value, or "".
func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	sessionName     = "attendchain_session"
	sessionUserID   = "user_id"
	sessionUser     = "username"
	sessionLoggedIn = "logged_in"
)

type userKey struct{}

// requireLogin rejects requests without a logged in session and puts the
// username in the request context.
func (s *Server) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessionStore.Get(r, sessionName)
		if err != nil {
			s.logger.Debug("discarding unreadable session", "error", err)
		}
		loggedIn, _ := sess.Values[sessionLoggedIn].(bool)
		username, _ := sess.Values[sessionUser].(string)
		if !loggedIn || username == "" {
			s.logger.Warn("unauthorized", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "Unauthorized access.")
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(string)
	return u
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// readCredentials accepts a JSON body or form fields.
func readCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&c)
		return c, err
	}
	if err := r.ParseForm(); err != nil {
		return c, err
	}
	c.Username = r.PostFormValue("username")
	c.Password = r.PostFormValue("password")
	return c, nil
}

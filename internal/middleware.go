package internal

import (
	"log/slog"
	"net/http"

	"github.com/johndosdos/venuechat/internal/auth"
)

// Middleware validates the client's JWT and stores the resulting identity
// in the request context. Requests without a valid token are sent to the
// login page of the auth provider.
func Middleware(next http.Handler, secret, loginURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := auth.TokenFromRequest(r)
		if err == nil {
			id, err := auth.ValidateJWT(tok, secret)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
				return
			}
			slog.InfoContext(r.Context(), "rejected credential token",
				"path", r.URL.Path,
				"error", err)
		}

		// htmx ignores 3xx on partial requests; ask it to navigate instead.
		if r.Header.Get("HX-Request") == "true" {
			w.Header().Set("HX-Redirect", loginURL)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		http.Redirect(w, r, loginURL, http.StatusSeeOther)
	}
}

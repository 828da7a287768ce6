package handler

import (
	"log"
	"net/http"

	"github.com/johndosdos/venuechat/internal/auth"
)

// ServeRoot sends authenticated users to the chat and everyone else to the
// auth provider's login page.
func ServeRoot(secret, loginURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := auth.TokenFromRequest(r)
		if err != nil {
			http.Redirect(w, r, loginURL, http.StatusSeeOther)
			return
		}

		if _, err := auth.ValidateJWT(tok, secret); err != nil {
			log.Printf("handler/root: invalid token: %v", err)
			http.Redirect(w, r, loginURL, http.StatusSeeOther)
			return
		}

		http.Redirect(w, r, "/chat", http.StatusSeeOther)
	}
}

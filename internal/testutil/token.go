package testutil

import (
	"testing"
	"time"

	"github.com/johndosdos/venuechat/internal/auth"
	"github.com/johndosdos/venuechat/internal/model"
)

const JWTSecret = "test-secret"

// Token signs a token for userID with the test secret.
func Token(t testing.TB, userID model.ID, role model.Role) string {
	t.Helper()

	tok, err := auth.MakeJWT(userID, role, JWTSecret, 5*time.Minute)
	if err != nil {
		t.Fatalf("auth.MakeJWT() error = %+v", err)
	}
	return tok
}

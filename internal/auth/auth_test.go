package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/johndosdos/venuechat/internal/model"
)

func TestJWT(t *testing.T) {
	t.Run("Valid_JWT", func(t *testing.T) {
		tokenSecret := "validtokensecret"
		tokenString, err := MakeJWT("42", model.RoleOwner, tokenSecret, 15*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		got, err := ValidateJWT(tokenString, tokenSecret)
		if err != nil {
			t.Fatalf("ValidateJWT() error = %+v", err)
		}
		if got.UserID != "42" {
			t.Errorf("want = 42, got = %+v", got.UserID)
		}
		if got.Role != model.RoleOwner {
			t.Errorf("want role = owner, got = %s", got.Role)
		}
		if got.Token != tokenString {
			t.Errorf("raw token was not kept on the identity")
		}
	})

	t.Run("Default_role", func(t *testing.T) {
		tokenString, err := MakeJWT("7", "", "secret", 15*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		got, err := ValidateJWT(tokenString, "secret")
		if err != nil {
			t.Fatalf("ValidateJWT() error = %+v", err)
		}
		if got.Role != model.RoleUser {
			t.Errorf("want role = user, got = %s", got.Role)
		}
	})

	t.Run("Incorrect_secret", func(t *testing.T) {
		tokenString, err := MakeJWT("42", model.RoleUser, "validtokensecret", 15*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		if _, err = ValidateJWT(tokenString, "fakesecret"); err == nil {
			t.Fatal("ValidateJWT() expected error but got none")
		}
	})

	t.Run("Expired_token", func(t *testing.T) {
		tokenString, err := MakeJWT("42", model.RoleUser, "validtokensecret", -1*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		if _, err = ValidateJWT(tokenString, "validtokensecret"); err == nil {
			t.Fatal("ValidateJWT() expected error but got none")
		}
	})

	t.Run("Empty_subject", func(t *testing.T) {
		tokenString, err := MakeJWT("", model.RoleUser, "validtokensecret", 15*time.Second)
		if err != nil {
			t.Fatalf("MakeJWT() error = %+v", err)
		}
		if _, err = ValidateJWT(tokenString, "validtokensecret"); err == nil {
			t.Fatal("ValidateJWT() expected error but got none")
		}
	})

	t.Run("Corrupt_token", func(t *testing.T) {
		if _, err := ValidateJWT("corrupttoken", "validtokensecret"); err == nil {
			t.Fatal("ValidateJWT() expected error but got none")
		}
	})
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		cookie  string
		header  string
		want    string
		wantErr bool
	}{
		{"cookie", "tok-cookie", "", "tok-cookie", false},
		{"bearer_header", "", "Bearer tok-header", "tok-header", false},
		{"cookie_wins", "tok-cookie", "Bearer tok-header", "tok-cookie", false},
		{"lowercase_scheme", "", "bearer tok", "tok", false},
		{"basic_scheme", "", "Basic abc", "", true},
		{"none", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/chat", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "jwt", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			got, err := TokenFromRequest(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TokenFromRequest() error = %+v", err)
			}
			if got != tt.want {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestGetIdentityFromContext(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		want := model.Identity{UserID: "u1", Role: model.RoleUser, Token: "t"}
		got, err := GetIdentityFromContext(WithIdentity(context.Background(), want))
		if err != nil {
			t.Fatalf("GetIdentityFromContext(): unexpected error = %+v", err)
		}
		if got != want {
			t.Errorf("want %+v but got %+v", want, got)
		}
	})

	t.Run("wrong_type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), IdentityKey, "u1")
		if _, err := GetIdentityFromContext(ctx); err == nil {
			t.Fatal("GetIdentityFromContext(): expected error but got none")
		}
	})

	t.Run("no_context_value", func(t *testing.T) {
		if _, err := GetIdentityFromContext(context.Background()); err == nil {
			t.Fatal("GetIdentityFromContext(): expected error but got none")
		}
	})
}

func TestParseUnverified(t *testing.T) {
	tokenString, err := MakeJWT("7", model.RoleOwner, "someone-elses-secret", time.Minute)
	if err != nil {
		t.Fatalf("MakeJWT() error = %+v", err)
	}

	got, err := ParseUnverified(tokenString)
	if err != nil {
		t.Fatalf("ParseUnverified() error = %+v", err)
	}
	if got.UserID != "7" || got.Role != model.RoleOwner || got.Token != tokenString {
		t.Errorf("unexpected identity %+v", got)
	}

	if _, err := ParseUnverified("not-a-token"); err == nil {
		t.Error("want error for malformed token")
	}
}

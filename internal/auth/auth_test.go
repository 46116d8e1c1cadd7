package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func token(t *testing.T, claims Claims) string {
	t.Helper()
	signed, err := Sign(secret, claims)
	require.NoError(t, err)
	return signed
}

func TestVerify(t *testing.T) {
	valid := Claims{Name: "Alice", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "nexus",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noSubject := valid
	noSubject.Subject = " "
	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"

	tests := []struct {
		name    string
		raw     string
		want    Identity
		wantErr error
	}{
		{"valid", token(t, valid), Identity{UserID: "alice", Name: "Alice"}, nil},
		{"missing", "", Identity{}, ErrMissingToken},
		{"garbage", "not-a-jwt", Identity{}, ErrInvalidToken},
		{"expired", token(t, expired), Identity{}, ErrInvalidToken},
		{"empty subject", token(t, noSubject), Identity{}, ErrInvalidToken},
		{"wrong issuer", token(t, otherIssuer), Identity{}, ErrInvalidToken},
	}

	v := NewVerifier(secret, "nexus")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	raw := token(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}})
	_, err := NewVerifier("other", "").Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_NameFallsBackToSubject(t *testing.T) {
	raw := token(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}})
	got, err := NewVerifier(secret, "").Verify(raw)
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: "bob", Name: "bob"}, got)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", http.NoBody)
	require.Equal(t, "from-query", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	require.Equal(t, "from-header", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	r.Header.Set("Authorization", "Basic abc")
	require.Empty(t, TokenFromRequest(r))
}

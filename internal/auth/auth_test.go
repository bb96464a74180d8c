package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierRoundTrip(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier([]byte("secret"), "sessions", 0)
	require.NoError(t, err)
	token, err := v.Issue(Principal{TenantID: "t1", UsuarioID: "u1", Role: "advogado"}, time.Minute)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Principal{TenantID: "t1", UsuarioID: "u1", Role: RoleLawyer}, p)
}

func TestVerifierRejects(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier([]byte("secret"), "sessions", 0)
	require.NoError(t, err)
	other, err := NewVerifier([]byte("other"), "sessions", 0)
	require.NoError(t, err)

	forged, err := other.Issue(Principal{TenantID: "t1", UsuarioID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Issue(Principal{TenantID: "t1", UsuarioID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noTenant, err := v.Issue(Principal{UsuarioID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(noTenant)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{TenantID: "t1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewVerifier(nil, "", 0)
	assert.Error(t, err)
}

func TestRoleSet(t *testing.T) {
	t.Parallel()

	def := NewRoleSet()
	assert.True(t, def.Allows(RoleAdmin))
	assert.True(t, def.Allows("advogado"))
	assert.False(t, def.Allows(RoleAssistant))

	custom := NewRoleSet(" assistente ", "")
	assert.True(t, custom.Allows(RoleAssistant))
	assert.False(t, custom.Allows(RoleAdmin))
}

type stubVerifier struct {
	p   Principal
	err error
}

func (s stubVerifier) Verify(string) (Principal, error) {
	return s.p, s.err
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var seen Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	deny := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	want := Principal{TenantID: "t1", UsuarioID: "u1", Role: RoleAdmin}

	h := Middleware(stubVerifier{p: want}, nil, deny)(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, want, seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := Middleware(stubVerifier{err: errors.New("nope")}, nil, deny)(next)
	rec = httptest.NewRecorder()
	bad.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFromContextMissing(t *testing.T) {
	t.Parallel()
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

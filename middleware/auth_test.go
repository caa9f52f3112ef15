package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	tokens := NewTokenIssuer("test-secret", time.Hour)

	signed, err := tokens.Issue("alice")
	require.NoError(t, err)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims[jwtClaimParticipantID])

	_, err = NewTokenIssuer("other-secret", time.Hour).Parse(signed)
	assert.Error(t, err)

	expired := NewTokenIssuer("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("alice")
	require.NoError(t, err)
	_, err = tokens.Parse(old)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{jwtClaimParticipantID: "mallory"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Parse(unsigned)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	tokens := NewTokenIssuer("test-secret", time.Hour)
	signed, err := tokens.Issue("bob")
	require.NoError(t, err)

	var seen string
	handler := tokens.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := GetParticipantIDFromContext(r.Context())
		require.NoError(t, err)
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+signed) }, http.StatusNoContent},
		{"query parameter", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", signed)
			r.URL.RawQuery = q.Encode()
		}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/ws/matches/12345678", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "bob", seen)
			}
		})
	}
}

func TestGetParticipantIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetParticipantIDFromContext(req.Context())
	assert.Error(t, err)

	id, err := GetParticipantIDFromContext(WithParticipantID(req.Context(), "carol"))
	require.NoError(t, err)
	assert.Equal(t, "carol", id)

	_, err = GetParticipantIDFromContext(WithParticipantID(req.Context(), ""))
	assert.Error(t, err)
}

func TestRequireOperatorKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		provided   string
		want       int
	}{
		{"matching key", "k3y", "k3y", http.StatusNoContent},
		{"missing key", "k3y", "", http.StatusForbidden},
		{"wrong key", "k3y", "k3", http.StatusForbidden},
		{"unconfigured rejects empty", "", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/operator", nil)
			if tt.provided != "" {
				req.Header.Set(OperatorKeyHeader, tt.provided)
			}
			rec := httptest.NewRecorder()
			RequireOperatorKey(tt.configured)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenInfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("id_token"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newGoogleVerifier(t *testing.T, endpoint string) *GoogleVerifier {
	t.Helper()
	v, err := NewGoogleVerifier(GoogleConfig{
		Audience: "my-client-id",
		Endpoint: endpoint,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return v
}

func TestGoogleVerifier(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		ts := newTokenInfoServer(t, http.StatusOK,
			`{"sub":"sub-123","aud":"my-client-id","email":"a@example.com","name":"Amira"}`)
		v := newGoogleVerifier(t, ts.URL)

		who, err := v.Verify(context.Background(), "token")
		require.NoError(t, err)
		assert.Equal(t, "sub-123", who.SubjectID)
		assert.Equal(t, "a@example.com", who.Email)
		assert.Equal(t, "Amira", who.Name)
	})

	t.Run("audience mismatch", func(t *testing.T) {
		ts := newTokenInfoServer(t, http.StatusOK,
			`{"sub":"sub-123","aud":"someone-elses-app"}`)
		v := newGoogleVerifier(t, ts.URL)

		_, err := v.Verify(context.Background(), "token")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audience")
	})

	t.Run("rejected token", func(t *testing.T) {
		ts := newTokenInfoServer(t, http.StatusBadRequest, `{"error":"invalid_token"}`)
		v := newGoogleVerifier(t, ts.URL)

		_, err := v.Verify(context.Background(), "token")
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		ts := newTokenInfoServer(t, http.StatusOK, `{"aud":"my-client-id"}`)
		v := newGoogleVerifier(t, ts.URL)

		_, err := v.Verify(context.Background(), "token")
		assert.Error(t, err)
	})

	t.Run("empty token short-circuits", func(t *testing.T) {
		v := newGoogleVerifier(t, "http://127.0.0.1:1")
		_, err := v.Verify(context.Background(), "")
		assert.Error(t, err)
	})
}

func TestNewGoogleVerifierRequiresAudience(t *testing.T) {
	_, err := NewGoogleVerifier(GoogleConfig{})
	assert.Error(t, err)
}

func TestStaticVerifier(t *testing.T) {
	v := StaticVerifier{}

	who, err := v.Verify(context.Background(), "dev-user")
	require.NoError(t, err)
	assert.Equal(t, "dev-user", who.SubjectID)

	_, err = v.Verify(context.Background(), "")
	assert.Error(t, err)
}

package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenIssueAndVerify(t *testing.T) {
	iss := NewTokenIssuer([]byte("secret"), time.Minute)
	token, err := iss.Issue()
	require.NoError(t, err)
	require.NoError(t, iss.Verify(token))
}

func TestTokenExpires(t *testing.T) {
	iss := NewTokenIssuer([]byte("secret"), time.Minute)
	start := time.Now()
	iss.now = func() time.Time { return start }

	token, err := iss.Issue()
	require.NoError(t, err)

	iss.now = func() time.Time { return start.Add(2 * time.Minute) }
	require.Error(t, iss.Verify(token), "token must expire after its ttl")
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer([]byte("secret-a"), time.Minute).Issue()
	require.NoError(t, err)
	require.Error(t, NewTokenIssuer([]byte("secret-b"), time.Minute).Verify(token))
}

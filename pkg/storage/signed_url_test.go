package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerRoundTrip(t *testing.T) {
	now := time.Date(2024, 12, 20, 8, 0, 0, 0, time.UTC)
	signer := NewSignedURLSigner("secret", time.Hour).WithClock(func() time.Time { return now })

	token, claims, err := signer.Sign("s1", "bulletins/Bulletin_Awa_Diop_T1.pdf")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), claims.ExpiresAt)

	parsed, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "s1", parsed.StudentID)
	assert.Equal(t, "bulletins/Bulletin_Awa_Diop_T1.pdf", parsed.Path)
	assert.True(t, parsed.ExpiresAt.Equal(claims.ExpiresAt))

	now = now.Add(time.Hour)
	_, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("s1", "bulletins/a.csv")
	require.NoError(t, err)

	_, err = NewSignedURLSigner("other", time.Hour).Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Verify(token[:len(token)-2] + "xx")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Verify("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignedURLSignerRejectsEscapingPaths(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	for _, p := range []string{"../etc/passwd", "/abs/file.pdf", "a/../../b.pdf", `a\b.pdf`} {
		_, _, err := signer.Sign("s1", p)
		require.Error(t, err, p)
	}
	_, _, err := NewSignedURLSigner("", time.Hour).Sign("s1", "a.pdf")
	require.Error(t, err)
}

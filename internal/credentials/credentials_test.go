package credentials

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	s, err := NewService("test-secret", opts...)
	require.NoError(t, err)
	return s
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService("   ")
	require.Error(t, err)
}

func TestHashAndVerify(t *testing.T) {
	s := newTestService(t)

	digest, err := s.Hash("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", digest)
	assert.True(t, s.Verify("hunter22", digest))
	assert.False(t, s.Verify("hunter23", digest))
	assert.False(t, s.Verify("hunter22", "not-a-bcrypt-digest"))
}

func TestIssueAndParseToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(t, WithClock(func() time.Time { return now }))

	token, err := s.IssueToken("acct-1")
	require.NoError(t, err)

	subject, err := s.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", subject)

	claims := jwt.RegisteredClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultTokenTTL).Unix(), claims.ExpiresAt.Unix())
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := issued
	s := newTestService(t, WithClock(func() time.Time { return clock }))

	token, err := s.IssueToken("acct-1")
	require.NoError(t, err)

	clock = issued.Add(DefaultTokenTTL + time.Minute)
	_, err = s.ParseToken(token)
	assert.Error(t, err)

	other, err := NewService("other-secret")
	require.NoError(t, err)
	foreign, err := other.IssueToken("acct-1")
	require.NoError(t, err)
	clock = issued
	_, err = s.ParseToken(foreign)
	assert.Error(t, err)
}

func TestIssueTokenRequiresAccountID(t *testing.T) {
	s := newTestService(t)
	_, err := s.IssueToken("")
	assert.Error(t, err)
}

package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned for malformed or tampered download tokens.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrTokenExpired is returned once a token is past its expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// DownloadToken is the content of a signed bulletin link.
type DownloadToken struct {
	StudentID string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner issues HMAC-signed bulletin download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer. A non-positive ttl means one day.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the signer's time source.
func (s *SignedURLSigner) WithClock(now func() time.Time) *SignedURLSigner {
	s.now = now
	return s
}

// Sign returns a token granting access to relPath for the student's bulletin.
func (s *SignedURLSigner) Sign(studentID, relPath string) (string, DownloadToken, error) {
	if studentID == "" || relPath == "" {
		return "", DownloadToken{}, fmt.Errorf("student id and path required")
	}
	if len(s.secret) == 0 {
		return "", DownloadToken{}, fmt.Errorf("signing secret missing")
	}
	if !safePath(relPath) {
		return "", DownloadToken{}, fmt.Errorf("path %q escapes storage", relPath)
	}
	claims := DownloadToken{StudentID: studentID, Path: relPath, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	body := base64.RawURLEncoding.EncodeToString([]byte(strings.Join([]string{
		claims.StudentID,
		strconv.FormatInt(claims.ExpiresAt.Unix(), 10),
		claims.Path,
	}, "\n")))
	return body + "." + s.signature(body), claims, nil
}

// Verify checks the signature and expiry of token.
func (s *SignedURLSigner) Verify(token string) (DownloadToken, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return DownloadToken{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(s.signature(body))) {
		return DownloadToken{}, ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return DownloadToken{}, ErrInvalidToken
	}
	parts := strings.SplitN(string(raw), "\n", 3)
	if len(parts) != 3 {
		return DownloadToken{}, ErrInvalidToken
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || !safePath(parts[2]) {
		return DownloadToken{}, ErrInvalidToken
	}
	claims := DownloadToken{StudentID: parts[0], Path: parts[2], ExpiresAt: time.Unix(exp, 0)}
	if !s.now().Before(claims.ExpiresAt) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

func (s *SignedURLSigner) signature(body string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func safePath(rel string) bool {
	if strings.HasPrefix(rel, "/") || strings.Contains(rel, "\\") {
		return false
	}
	clean := path.Clean(rel)
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}

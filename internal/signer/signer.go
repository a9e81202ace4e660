// Package signer implements the embedded development signing backend:
// it mints time-limited HMAC-signed media URLs for chunk object keys and
// serves the same resolve endpoint an external signing service would, so a
// standalone deployment needs no extra infrastructure.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Signature verification errors
var (
	// ErrExpired indicates the signed URL's expiry has passed
	ErrExpired = errors.New("signed url expired")
	// ErrBadSignature indicates the signature does not match the URL contents
	ErrBadSignature = errors.New("signed url signature mismatch")
	// ErrMalformedURL indicates a URL missing the required signing parameters
	ErrMalformedURL = errors.New("malformed signed url")
)

// Service mints and verifies signed media URLs. The secret never leaves the
// process; clients only ever see finished URLs.
type Service struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// New creates a signing service. baseURL is the externally visible prefix
// signed URLs are rooted at, ttl how long each minted URL stays valid.
func New(secret, baseURL string, ttl time.Duration) *Service {
	return &Service{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL returns the validity window of minted URLs.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// SignURL mints a playable URL for a chunk's object key. The duration hint
// rides along so a headless playback handle can pace itself without probing
// the media bytes.
func (s *Service) SignURL(objectKey string, durationSeconds float64) string {
	expiresAt := s.now().Add(s.ttl).Unix()

	q := url.Values{}
	q.Set("dur", strconv.FormatFloat(durationSeconds, 'f', -1, 64))
	q.Set("exp", strconv.FormatInt(expiresAt, 10))
	q.Set("sig", s.signature(objectKey, durationSeconds, expiresAt))

	escaped := (&url.URL{Path: objectKey}).EscapedPath()
	return fmt.Sprintf("%s/media/%s?%s", s.baseURL, strings.TrimLeft(escaped, "/"), q.Encode())
}

// Verify checks a media path and query against the signing secret and the
// current time. objectKey is the path below /media/.
func (s *Service) Verify(objectKey string, query url.Values) error {
	durStr := query.Get("dur")
	expStr := query.Get("exp")
	sig := query.Get("sig")
	if durStr == "" || expStr == "" || sig == "" {
		return ErrMalformedURL
	}

	dur, err := strconv.ParseFloat(durStr, 64)
	if err != nil {
		return fmt.Errorf("%w: bad duration: %v", ErrMalformedURL, err)
	}
	expiresAt, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad expiry: %v", ErrMalformedURL, err)
	}

	expected := s.signature(objectKey, dur, expiresAt)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrBadSignature
	}
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}
	return nil
}

// VerifyURL checks a complete signed URL as minted by SignURL.
func (s *Service) VerifyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	objectKey, ok := strings.CutPrefix(u.Path, "/media/")
	if !ok {
		return fmt.Errorf("%w: not a media path", ErrMalformedURL)
	}
	return s.Verify(objectKey, u.Query())
}

// signature computes the hex HMAC-SHA256 over the URL's signed fields.
func (s *Service) signature(objectKey string, durationSeconds float64, expiresAt int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%d",
		objectKey, strconv.FormatFloat(durationSeconds, 'f', -1, 64), expiresAt)
	return hex.EncodeToString(mac.Sum(nil))
}

// DurationFromURL extracts the duration hint carried by a signed URL. It is
// the duration probe for clock-driven playback handles.
func DurationFromURL(raw string) (float64, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	durStr := u.Query().Get("dur")
	if durStr == "" {
		return 0, fmt.Errorf("%w: missing duration hint", ErrMalformedURL)
	}
	dur, err := strconv.ParseFloat(durStr, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad duration hint: %v", ErrMalformedURL, err)
	}
	return dur, nil
}

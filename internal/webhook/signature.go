// Package webhook verifies and decodes inbound billing provider webhooks.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingSignature is returned when the signature header is absent.
	ErrMissingSignature = errors.New("no signature")
	// ErrMalformedHeader is returned when the header has no timestamp or no v1 signature.
	ErrMalformedHeader = errors.New("unable to extract timestamp and signatures from header")
	// ErrInvalidSignature is returned when no signature matches the payload.
	ErrInvalidSignature = errors.New("no signatures found matching the expected signature for payload")
	// ErrReplayWindowExceeded is returned when timestamp is outside replay window.
	ErrReplayWindowExceeded = errors.New("timestamp outside the tolerance zone")
)

const (
	// DefaultReplayWindow is the default replay protection window.
	DefaultReplayWindow = 5 * time.Minute

	// SignatureHeader carries "t=<unix>,v1=<hex>[,v1=<hex>...]".
	SignatureHeader = "Stripe-Signature"

	schemeV1 = "v1"
)

// GenerateSignature creates the HMAC-SHA256 signature for a payload.
// The canonical string format is: "{timestamp}.{payload}"
func GenerateSignature(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignHeader builds a signature header value for payload, as the provider
// would send it. Used by tests and local tooling.
func SignHeader(secret string, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,%s=%s", timestamp, schemeV1, GenerateSignature(secret, timestamp, payload))
}

// SignedHeader is a parsed signature header.
type SignedHeader struct {
	Timestamp  int64
	Signatures []string
}

// ParseSignatureHeader splits a header into its timestamp and v1 signatures.
// Unknown schemes (e.g. v0) are ignored.
func ParseSignatureHeader(header string) (*SignedHeader, error) {
	if strings.TrimSpace(header) == "" {
		return nil, ErrMissingSignature
	}

	sh := &SignedHeader{}
	haveTS := false
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, ErrMalformedHeader
			}
			sh.Timestamp = ts
			haveTS = true
		case schemeV1:
			if value != "" {
				sh.Signatures = append(sh.Signatures, value)
			}
		}
	}

	if !haveTS || len(sh.Signatures) == 0 {
		return nil, ErrMalformedHeader
	}
	return sh, nil
}

// Verifier checks signature headers against one endpoint secret.
type Verifier struct {
	secret string
	window time.Duration
	now    func() time.Time
}

// NewVerifier creates a Verifier. A non-positive window uses DefaultReplayWindow.
func NewVerifier(secret string, window time.Duration) *Verifier {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	return &Verifier{secret: secret, window: window, now: time.Now}
}

// Verify authenticates payload against header. The signature is checked
// before the timestamp so a forged header never learns about clock skew.
func (v *Verifier) Verify(payload []byte, header string) error {
	sh, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	expected := []byte(GenerateSignature(v.secret, sh.Timestamp, payload))
	matched := false
	for _, sig := range sh.Signatures {
		if hmac.Equal(expected, []byte(sig)) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrInvalidSignature
	}

	if abs(v.now().Unix()-sh.Timestamp) > int64(v.window.Seconds()) {
		return ErrReplayWindowExceeded
	}
	return nil
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

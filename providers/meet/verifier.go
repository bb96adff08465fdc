package meet

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hireloop/go-intake/core"
)

const (
	HeaderSignature = "x-meet-signature"
	HeaderTimestamp = "x-meet-request-timestamp"

	signatureVersion = "v0"

	// DefaultTolerableSkew bounds how old a signed request may be. Replays
	// outside the window are rejected even with a valid signature.
	DefaultTolerableSkew = 300 * time.Second
)

// Verifier checks the provider's v0 HMAC scheme: the signature header carries
// "v0=<hex hmac-sha256>" over the message "v0:{timestamp}:{rawBody}", keyed
// with the raw shared secret.
type Verifier struct {
	Secret string
	Skew   time.Duration
	Now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		Secret: secret,
		Skew:   DefaultTolerableSkew,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (v *Verifier) Verify(_ context.Context, req core.InboundRequest) error {
	if v == nil || strings.TrimSpace(v.Secret) == "" {
		return core.NewSignatureInvalidError("meet: signing secret is not configured", nil)
	}

	timestamp := headerValue(req.Headers, HeaderTimestamp)
	if timestamp == "" {
		return core.NewSignatureInvalidError("meet: timestamp header is missing", nil)
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return core.NewSignatureInvalidError("meet: timestamp header is not numeric", map[string]any{
			"timestamp": timestamp,
		})
	}
	if err := v.checkFreshness(unix); err != nil {
		return err
	}

	signature := headerValue(req.Headers, HeaderSignature)
	if signature == "" {
		return core.NewSignatureInvalidError("meet: signature header is missing", nil)
	}
	expected := signatureVersion + "=" + SignPayload(v.Secret, timestamp, req.Body)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return core.NewSignatureInvalidError("meet: signature mismatch", nil)
	}
	return nil
}

func (v *Verifier) checkFreshness(unix int64) error {
	skew := v.Skew
	if skew <= 0 {
		skew = DefaultTolerableSkew
	}
	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	age := now.Sub(time.Unix(unix, 0).UTC())
	if age < 0 {
		age = -age
	}
	if age > skew {
		return core.NewTimestampStaleError(
			fmt.Sprintf("meet: request timestamp outside %s window", skew),
			map[string]any{"age_seconds": int64(age.Seconds())},
		)
	}
	return nil
}

// SignPayload produces the hex digest for "v0:{timestamp}:{body}".
func SignPayload(secret string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignToken answers the endpoint-validation challenge: a hex HMAC of the
// provider-issued nonce keyed with the shared secret.
func SignToken(secret string, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

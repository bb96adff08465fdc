package mail

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hireloop/go-intake/core"
)

const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	secretPrefix = "whsec_"

	DefaultTolerableSkew = 300 * time.Second
)

// Verifier implements the email provider's versioned signature scheme. The
// signature header carries one or more space-separated "v1,<base64 hmac>"
// entries over "{id}.{timestamp}.{rawBody}"; the HMAC key is the base64
// decoding of the shared secret after stripping the whsec_ prefix. Any one
// matching signature accepts the request, which lets the provider rotate
// secrets without a cutover window.
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
		return core.NewSignatureInvalidError("mail: signing secret is not configured", nil)
	}
	key, err := decodeSecret(v.Secret)
	if err != nil {
		return core.NewSignatureInvalidError("mail: signing secret is not valid base64", nil)
	}

	id := headerValue(req.Headers, HeaderID)
	timestamp := headerValue(req.Headers, HeaderTimestamp)
	signatures := headerValue(req.Headers, HeaderSignature)
	if id == "" || timestamp == "" || signatures == "" {
		return core.NewSignatureInvalidError("mail: webhook headers are missing", nil)
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return core.NewSignatureInvalidError("mail: timestamp header is not numeric", map[string]any{
			"timestamp": timestamp,
		})
	}
	if err := v.checkFreshness(unix); err != nil {
		return err
	}

	expected := SignPayload(key, id, timestamp, req.Body)
	for _, candidate := range strings.Fields(signatures) {
		version, value, found := strings.Cut(candidate, ",")
		if !found || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(value), []byte(expected)) {
			return nil
		}
	}
	return core.NewSignatureInvalidError("mail: no signature matched", map[string]any{
		"webhook_id": id,
	})
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
			fmt.Sprintf("mail: request timestamp outside %s window", skew),
			map[string]any{"age_seconds": int64(age.Seconds())},
		)
	}
	return nil
}

// SignPayload produces the base64 digest for "{id}.{timestamp}.{body}".
func SignPayload(key []byte, id string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func decodeSecret(secret string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(secret), secretPrefix)
	return base64.StdEncoding.DecodeString(trimmed)
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

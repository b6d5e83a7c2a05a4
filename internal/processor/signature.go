package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	processortypes "github.com/collabary/payments/internal/core/datamodel/processor"
)

// DefaultSignatureTolerance bounds how old a signed timestamp may be
// before the event is rejected as a possible replay.
const DefaultSignatureTolerance = 5 * time.Minute

// VerifySignature checks the signature header against the shared webhook
// secret and decodes the event envelope. The header format is
// "t=<unix>,v1=<hex hmac>" where the hmac covers "<unix>.<rawBody>".
// Invalid signatures are rejected before anything touches the queue.
func VerifySignature(rawBody []byte, signatureHeader, secret string) (*processortypes.Event, error) {
	return verifySignatureAt(rawBody, signatureHeader, secret, time.Now())
}

func verifySignatureAt(rawBody []byte, signatureHeader, secret string, now time.Time) (*processortypes.Event, error) {
	if signatureHeader == "" {
		return nil, newPermanentError("signature_missing", "signature header is empty")
	}

	var timestamp int64
	var signature string
	for _, part := range strings.Split(signatureHeader, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, newPermanentError("signature_malformed", "invalid timestamp in signature header")
			}
			timestamp = ts
		case "v1":
			signature = value
		}
	}

	if timestamp == 0 || signature == "" {
		return nil, newPermanentError("signature_malformed", "signature header missing timestamp or digest")
	}

	age := math.Abs(now.Sub(time.Unix(timestamp, 0)).Seconds())
	if age > DefaultSignatureTolerance.Seconds() {
		return nil, newPermanentError("signature_expired", "signed timestamp outside tolerance window")
	}

	expected := ComputeSignature(rawBody, timestamp, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, newPermanentError("signature_mismatch", "webhook signature does not match")
	}

	var event processortypes.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, newPermanentError("envelope_malformed", fmt.Sprintf("cannot decode event envelope: %v", err))
	}
	if event.ID == "" || event.Type == "" {
		return nil, newPermanentError("envelope_malformed", "event envelope missing id or type")
	}

	return &event, nil
}

// ComputeSignature produces the hex HMAC-SHA256 digest for a signed
// payload. Exported so tests and the seeding tools can build valid
// headers.
func ComputeSignature(rawBody []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds a complete header for a payload, used by tests.
func SignatureHeader(rawBody []byte, timestamp int64, secret string) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(rawBody, timestamp, secret))
}

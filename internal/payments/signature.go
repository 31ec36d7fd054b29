package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// FedaPaySignatureTolerance is how old a FedaPay signature timestamp may be.
const FedaPaySignatureTolerance = 5 * time.Minute

// sign returns the hex HMAC-SHA256 of msg.
func sign(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// equalHex compares two hex digests in constant time.
func equalHex(got, want string) bool {
	a, err := hex.DecodeString(strings.TrimSpace(got))
	if err != nil {
		return false
	}
	b, err := hex.DecodeString(want)
	if err != nil {
		return false
	}
	return hmac.Equal(a, b)
}

// verifyMoneroo checks X-Moneroo-Signature: hex HMAC of the raw body.
func verifyMoneroo(secret, header string, body []byte) error {
	if secret == "" {
		return invalidSignature("webhook secret not configured")
	}
	if header == "" {
		return invalidSignature("missing signature header")
	}
	if !equalHex(header, sign(secret, body)) {
		return invalidSignature("signature mismatch")
	}
	return nil
}

// verifyFedaPay checks X-FEDAPAY-SIGNATURE: "t=<unix>,s=<hex>", where the
// digest covers "<t>.<raw body>". Several s= values may be present during
// secret rotation; any match is accepted.
func verifyFedaPay(secret, header string, body []byte, now time.Time) error {
	if secret == "" {
		return invalidSignature("webhook secret not configured")
	}
	if header == "" {
		return invalidSignature("missing signature header")
	}

	var ts string
	var sigs []string
	for _, kv := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "s":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return invalidSignature("malformed signature header")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return invalidSignature("malformed signature timestamp")
	}
	if age := now.Sub(time.Unix(unix, 0)); age > FedaPaySignatureTolerance || age < -FedaPaySignatureTolerance {
		return invalidSignature("signature timestamp outside tolerance")
	}

	want := sign(secret, append([]byte(ts+"."), body...))
	for _, s := range sigs {
		if equalHex(s, want) {
			return nil
		}
	}
	return invalidSignature("signature mismatch")
}

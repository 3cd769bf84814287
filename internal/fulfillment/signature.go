package fulfillment

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Verifier checks PayHere notification signatures. The gateway signs
// md5sig = UPPER(MD5(merchantId + orderId + amount + currency + statusCode
// + UPPER(MD5(merchantSecret)))) with the pre-shared merchant secret.
type Verifier struct {
	merchantID   string
	hashedSecret string
}

func NewVerifier(merchantID, merchantSecret string) Verifier {
	return Verifier{
		merchantID:   merchantID,
		hashedSecret: md5Upper(merchantSecret),
	}
}

// Verify recomputes the digest from the notification fields and compares it
// to the carried signature in constant time.
func (v Verifier) Verify(n Notification) bool {
	if n.MerchantID != v.merchantID || n.Signature == "" {
		return false
	}
	want := v.Sign(n.CartID, n.Amount, n.Currency, n.StatusCode)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToUpper(n.Signature))) == 1
}

// Sign produces the digest the gateway is expected to send. Tests and local
// tooling use it to build valid notifications.
func (v Verifier) Sign(cartID, amount, currency, statusCode string) string {
	return md5Upper(v.merchantID + cartID + amount + currency + statusCode + v.hashedSecret)
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

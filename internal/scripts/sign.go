package scripts

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/langbridge/bridge-engine/internal/logging"
)

// sign returns a base64-encoded HMAC-SHA-256 signature over code,
// following the same mac.Write-then-Sum shape as the teacher's
// webhook payload signer (internal/eventbus/webhook.go's
// signWebhookPayload), but over the script body alone rather than a
// timestamp-qualified delivery payload — script signatures have no
// replay window to protect against, only at-rest tampering.
func sign(secret []byte, code string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(code))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// verify recomputes the signature and compares it to want using
// hmac.Equal, which is constant-time and therefore safe against
// timing side channels.
func verify(secret []byte, code, want string) bool {
	got, err := base64.StdEncoding.DecodeString(want)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(code))
	return hmac.Equal(mac.Sum(nil), got)
}

// DeriveDefaultSigningSecret produces a random secret to use when no
// signing secret was configured. It logs loudly at warn level because
// a secret generated fresh on every process start invalidates every
// previously-signed script: Load and LoadByPath will report KindTamper
// for scripts signed by a prior process. This is deliberately not a
// silent convenience fallback.
func DeriveDefaultSigningSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable; a zero-filled secret is
		// still deterministic within this process and better than a panic.
		logging.Op().Error("script signing: crypto/rand failed, using zero-filled secret", "error", err)
	}
	secret := hex.EncodeToString(buf)
	logging.Op().Warn("script signing: no signing secret configured, generated an ephemeral one for this process; previously-signed scripts will now read back as TAMPER")
	return secret
}

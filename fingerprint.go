package accounts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// fingerprintLen is the number of hex characters embedded into tokens.
const fingerprintLen = 24

func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLen]
}

// PasswordFingerprint derives the state fingerprint bound into
// password-reset, password-set, and archive-undo tokens. It changes the
// moment the password hash rotates, which is what self-invalidates those
// tokens without a side database write.
func PasswordFingerprint(account *Account) string {
	if account == nil {
		return ""
	}
	return fingerprint("pwd", account.PasswordHash)
}

// RefreshFingerprint derives the state fingerprint bound into refresh
// tokens. It covers both the password hash and the refresh epoch, so a
// password change or a revoke-all invalidates every outstanding refresh
// token on its next use.
func RefreshFingerprint(account *Account) string {
	if account == nil {
		return ""
	}
	return fingerprint("refresh", account.PasswordHash, fmt.Sprintf("%d", account.RefreshEpoch))
}

// FingerprintForPurpose resolves the current expected fingerprint for a
// state-bound purpose. Purposes with no bound state return "".
func FingerprintForPurpose(account *Account, purpose TokenPurpose) string {
	switch purpose {
	case PurposePasswordReset, PurposePasswordSet, PurposeArchiveUndo:
		return PasswordFingerprint(account)
	case PurposeRefresh:
		return RefreshFingerprint(account)
	default:
		return ""
	}
}

package wallet

import (
	"crypto/ed25519"
	"strconv"
)

const loginMessagePrefix = "coa-login:"

// LoginMessage is the payload a wallet signs to prove control of its key.
func LoginMessage(timestamp int64) []byte {
	return []byte(loginMessagePrefix + strconv.FormatInt(timestamp, 10))
}

// Verify reports whether sig is a valid ed25519 signature of message by the wallet.
func (a Address) Verify(message, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(a.PublicKey(), message, sig)
}

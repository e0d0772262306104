// internal/secrets/legacy.go
//
// Compatibility decrypt for credentials written before the versioned
// envelope existed: "iv:ciphertext" as two hex strings, AES-256-CBC with
// PKCS#7 padding. Read-only; anything decrypted here is re-encrypted as an
// envelope by the migrate operation.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"strings"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
)

// looksLegacy reports whether raw matches the historical iv:ciphertext form.
func looksLegacy(raw string) bool {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return false
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return false
	}
	_, err = hex.DecodeString(parts[1])
	return err == nil
}

func decryptLegacy(raw string, key []byte) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}

	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return "", appErrors.NewIntegrityError("malformed legacy value")
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return "", appErrors.NewIntegrityError("malformed legacy iv")
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", appErrors.NewIntegrityError("malformed legacy ciphertext")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	plain, err = stripPKCS7(plain)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func stripPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, appErrors.NewIntegrityError("empty legacy plaintext")
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(b) {
		return nil, appErrors.NewIntegrityError("bad legacy padding")
	}
	for _, c := range b[len(b)-pad:] {
		if int(c) != pad {
			return nil, appErrors.NewIntegrityError("bad legacy padding")
		}
	}
	return b[:len(b)-pad], nil
}

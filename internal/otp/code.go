package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const codeLength = 6

var digitRange = big.NewInt(10)

func generateCode() (string, error) {
	var sb strings.Builder
	sb.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, digitRange)
		if err != nil {
			return "", fmt.Errorf("generate otp digit: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

// normalizeCode trims the input and reports whether it is exactly six ASCII digits.
func normalizeCode(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if len(code) != codeLength {
		return "", false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "", false
		}
	}
	return code, true
}

func fastKey(identityID, purpose string) string {
	return "otp:" + purpose + ":" + identityID
}

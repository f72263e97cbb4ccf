package hikeit

import (
	"encoding/hex"
	"strings"
)

// EncodePIN PIN 编码：左补零到4位，两两交换（"0123" -> "2301"），按十六进制取2字节
func EncodePIN(pin string) ([2]byte, error) {
	var out [2]byte
	if len(pin) == 0 || len(pin) > 4 {
		return out, ErrInvalidPin
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return out, ErrInvalidPin
		}
	}
	padded := strings.Repeat("0", 4-len(pin)) + pin
	swapped := padded[2:4] + padded[0:2]
	b, err := hex.DecodeString(swapped)
	if err != nil {
		return out, ErrInvalidPin
	}
	copy(out[:], b)
	return out, nil
}

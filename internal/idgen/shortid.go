// Package idgen provides the short, dense textual encoding used for
// workspace short-ids: the opaque identifier a session channel URL
// carries in place of a raw UUID (spec.md §4.E step 2).
package idgen

import (
	"math/big"
	"strings"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts a byte slice to a base36 string of specified
// length, left-padding with zeros or truncating to the least significant
// digits as needed.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	var result strings.Builder
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	for i := len(chars) - 1; i >= 0; i-- {
		result.WriteByte(chars[i])
	}

	str := result.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// DecodeBase36 reverses EncodeBase36, returning the integer value encoded
// in s. Unlike EncodeBase36 this is exact: no information is discarded as
// long as s was produced with a length wide enough to hold the value.
func DecodeBase36(s string) (int64, error) {
	n := new(big.Int)
	_, ok := n.SetString(s, 36)
	if !ok {
		return 0, &DecodeError{Input: s}
	}
	return n.Int64(), nil
}

// DecodeError reports a short-id that is not valid base36.
type DecodeError struct {
	Input string
}

func (e *DecodeError) Error() string {
	return "idgen: invalid short-id " + e.Input
}

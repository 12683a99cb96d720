// Package codec maps link identifiers to short codes and back.
//
// Codes are positional base 62 over the alphabet 0-9, a-z, A-Z with the most
// significant symbol first and no padding, so Encode(0) is "0" and Encode(62)
// is "10".
package codec

import (
	"github.com/jxskiss/base62"
	"github.com/pkg/errors"
)

// Alphabet is the symbol table, indexed by digit value.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ErrInvalidCode is returned by Decode for input that is not a code.
var ErrInvalidCode = errors.New("invalid short code")

var (
	encoding = base62.NewEncoding(Alphabet)

	// index maps a byte to its digit value, -1 outside the alphabet.
	index [256]int8

	// maxCode is Encode(math.MaxUint64); longer or larger codes overflow.
	maxCode string
)

func init() {
	for i := range index {
		index[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		index[Alphabet[i]] = int8(i)
	}
	maxCode = Encode(^uint64(0))
}

// Encode returns the short code for n.
func Encode(n uint64) string {
	if n == 0 {
		return Alphabet[:1]
	}
	return string(encoding.FormatUint(n))
}

// Decode returns the number encoded by s.
func Decode(s string) (uint64, error) {
	if s == "" {
		return 0, errors.Wrap(ErrInvalidCode, "empty code")
	}
	for i := 0; i < len(s); i++ {
		if index[s[i]] < 0 {
			return 0, errors.Wrapf(ErrInvalidCode, "character %q at position %d", s[i], i)
		}
	}
	if overflows(s) {
		return 0, errors.Wrapf(ErrInvalidCode, "%q exceeds the 64-bit range", s)
	}

	n, err := encoding.ParseUint([]byte(s))
	if err != nil {
		return 0, errors.Wrap(ErrInvalidCode, err.Error())
	}
	return n, nil
}

// Valid reports whether every character of s belongs to the alphabet.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if index[s[i]] < 0 {
			return false
		}
	}
	return true
}

// overflows compares s against maxCode digit by digit. The alphabet is not in
// ASCII order, so plain string comparison would be wrong.
func overflows(s string) bool {
	switch {
	case len(s) < len(maxCode):
		return false
	case len(s) > len(maxCode):
		return true
	}
	for i := 0; i < len(s); i++ {
		a, b := index[s[i]], index[maxCode[i]]
		if a != b {
			return a > b
		}
	}
	return false
}

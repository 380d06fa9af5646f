// Package bcd implements the packed binary-coded-decimal encoding used for
// IMSIs on the wire (TBCD, 3GPP TS 29.002 / TS 24.008).
//
// Digits are packed two per byte, swapped-nibble: the low nibble of byte k
// holds digit 2k, the high nibble holds digit 2k+1. When the digit count is
// odd, the high nibble of the final byte is the filler 0xF.
package bcd

import (
	"errors"
	"fmt"
)

// filler is the high-nibble padding value marking the end of an odd-length
// digit string (3GPP TS 24.008 Section 10.5.1.4).
const filler = 0x0F

// MaxIMSIDigits is the maximum IMSI length in decimal digits
// (3GPP TS 23.003 Section 2.2: not more than 15 digits).
const MaxIMSIDigits = 15

// Sentinel errors for encode/decode rejection.
var (
	// ErrEmptyIMSI indicates an encode of the empty string.
	ErrEmptyIMSI = errors.New("imsi must not be empty")

	// ErrNonDigit indicates the IMSI contains a byte outside '0'-'9'.
	ErrNonDigit = errors.New("imsi must contain only digits 0-9")

	// ErrEmptyPayload indicates a decode of a zero-length byte sequence.
	ErrEmptyPayload = errors.New("bcd payload must not be empty")

	// ErrInvalidNibble indicates a nibble outside 0-9 that is not the
	// 0xF filler.
	ErrInvalidNibble = errors.New("bcd nibble out of range")
)

// Encode packs an IMSI digit string into swapped-nibble BCD bytes.
// The output length is ceil(len(imsi)/2); for an odd digit count the high
// nibble of the last byte is the 0xF filler.
//
// Returns ErrEmptyIMSI for the empty string and ErrNonDigit if any byte is
// outside '0'-'9'.
func Encode(imsi string) ([]byte, error) {
	if imsi == "" {
		return nil, ErrEmptyIMSI
	}

	for i := 0; i < len(imsi); i++ {
		if imsi[i] < '0' || imsi[i] > '9' {
			return nil, fmt.Errorf("encode imsi byte %d: %w", i, ErrNonDigit)
		}
	}

	out := make([]byte, 0, (len(imsi)+1)/2)

	for i := 0; i < len(imsi); i += 2 {
		low := imsi[i] - '0'
		high := byte(filler)
		if i+1 < len(imsi) {
			high = imsi[i+1] - '0'
		}
		out = append(out, high<<4|low)
	}

	return out, nil
}

// Decode unpacks swapped-nibble BCD bytes into an IMSI digit string.
// Bytes are read left to right; each byte contributes its low-nibble digit
// and then, unless the high nibble is the 0xF filler, its high-nibble
// digit. Decoding stops at the first filler nibble; any bytes past it are
// ignored.
//
// Returns ErrEmptyPayload for zero-length input and ErrInvalidNibble for
// any nibble outside 0-9 that is not the filler.
func Decode(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}

	digits := make([]byte, 0, len(payload)*2)

	for i, b := range payload {
		low := b & 0x0F
		high := b >> 4

		if low > 9 {
			return "", fmt.Errorf("decode byte %d low nibble 0x%X: %w", i, low, ErrInvalidNibble)
		}
		digits = append(digits, '0'+low)

		if high == filler {
			break
		}
		if high > 9 {
			return "", fmt.Errorf("decode byte %d high nibble 0x%X: %w", i, high, ErrInvalidNibble)
		}
		digits = append(digits, '0'+high)
	}

	return string(digits), nil
}

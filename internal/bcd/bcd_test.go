package bcd_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dantte-lp/gopgw/internal/bcd"
)

// TestEncode verifies the swapped-nibble byte layout against known vectors,
// including the 0xF filler for odd digit counts.
func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		imsi string
		want []byte
	}{
		{imsi: "1", want: []byte{0xF1}},
		{imsi: "12", want: []byte{0x21}},
		{imsi: "123", want: []byte{0x21, 0xF3}},
		{imsi: "9999", want: []byte{0x99, 0x99}},
		{imsi: "0000", want: []byte{0x00, 0x00}},
		{imsi: "001010123456789", want: []byte{0x00, 0x01, 0x10, 0x32, 0x54, 0x76, 0x98, 0xF9}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.imsi, func(t *testing.T) {
			t.Parallel()

			got, err := bcd.Encode(tt.imsi)
			if err != nil {
				t.Fatalf("Encode(%q): unexpected error: %v", tt.imsi, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode(%q) = % X, want % X", tt.imsi, got, tt.want)
			}
		})
	}
}

// TestEncodeLength verifies that the output length is ceil(n/2) and that
// odd-length strings carry the filler in the final high nibble.
func TestEncodeLength(t *testing.T) {
	t.Parallel()

	for n := 1; n <= bcd.MaxIMSIDigits; n++ {
		imsi := strings.Repeat("7", n)

		got, err := bcd.Encode(imsi)
		if err != nil {
			t.Fatalf("Encode(%d digits): unexpected error: %v", n, err)
		}

		if want := (n + 1) / 2; len(got) != want {
			t.Errorf("Encode(%d digits) length = %d, want %d", n, len(got), want)
		}

		if n%2 == 1 {
			if high := got[len(got)-1] >> 4; high != 0x0F {
				t.Errorf("Encode(%d digits) final high nibble = 0x%X, want 0xF", n, high)
			}
		}
	}
}

// TestEncodeRejectsInvalid verifies encode rejection of the empty string
// and non-digit bytes.
func TestEncodeRejectsInvalid(t *testing.T) {
	t.Parallel()

	if _, err := bcd.Encode(""); !errors.Is(err, bcd.ErrEmptyIMSI) {
		t.Errorf("Encode(\"\") error = %v, want ErrEmptyIMSI", err)
	}

	for _, imsi := range []string{"12a45", "1234 ", "-1234", "12.34", "１２３"} {
		if _, err := bcd.Encode(imsi); !errors.Is(err, bcd.ErrNonDigit) {
			t.Errorf("Encode(%q) error = %v, want ErrNonDigit", imsi, err)
		}
	}
}

// TestDecode verifies decoding of known vectors, including stopping at the
// filler nibble.
func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{name: "single digit", payload: []byte{0xF1}, want: "1"},
		{name: "two digits", payload: []byte{0x21}, want: "12"},
		{name: "zeros", payload: []byte{0x00, 0x00}, want: "0000"},
		{name: "odd length", payload: []byte{0x21, 0xF3}, want: "123"},
		{name: "bytes past filler ignored", payload: []byte{0xF1, 0x21}, want: "1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := bcd.Decode(tt.payload)
			if err != nil {
				t.Fatalf("Decode(% X): unexpected error: %v", tt.payload, err)
			}
			if got != tt.want {
				t.Errorf("Decode(% X) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

// TestDecodeRejectsInvalid verifies decode rejection of empty payloads and
// nibbles outside 0-9 that are not the filler.
func TestDecodeRejectsInvalid(t *testing.T) {
	t.Parallel()

	if _, err := bcd.Decode(nil); !errors.Is(err, bcd.ErrEmptyPayload) {
		t.Errorf("Decode(nil) error = %v, want ErrEmptyPayload", err)
	}

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "low nibble A", payload: []byte{0x1A}},
		{name: "low nibble F", payload: []byte{0x1F}},
		{name: "high nibble A", payload: []byte{0xA1}},
		{name: "high nibble B mid-stream", payload: []byte{0x21, 0xB3}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := bcd.Decode(tt.payload); !errors.Is(err, bcd.ErrInvalidNibble) {
				t.Errorf("Decode(% X) error = %v, want ErrInvalidNibble", tt.payload, err)
			}
		})
	}
}

// TestRoundTrip verifies decode(encode(s)) == s for every digit string
// length from 1 through 15 and a spread of digit values.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	const digits = "0123456789012345"

	for n := 1; n <= bcd.MaxIMSIDigits; n++ {
		imsi := digits[:n]

		encoded, err := bcd.Encode(imsi)
		if err != nil {
			t.Fatalf("Encode(%q): unexpected error: %v", imsi, err)
		}

		decoded, err := bcd.Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(Encode(%q)): unexpected error: %v", imsi, err)
		}

		if decoded != imsi {
			t.Errorf("round trip %q -> % X -> %q", imsi, encoded, decoded)
		}
	}
}

// Package bvid converts between numeric AV ids and BV shortcodes.
package bvid

import (
	"errors"
	"strings"
)

const (
	xorCode  int64 = 23442827791579
	maskCode int64 = 2251799813685247
	maxAID   int64 = 1 << 51
	base     int64 = 58
	alphabet       = "FcwAPNKTMug3GV5Lj7EJnHpWsx4tb8haYeviqBz6rkCy12mUSDQX9RdoZf"
	prefix         = "BV1"
	codeLen        = 12
)

var (
	// ErrInvalidShortcode is returned for codes of the wrong length or with
	// characters outside the alphabet. Retrying cannot fix it.
	ErrInvalidShortcode = errors.New("invalid BV shortcode")

	// ErrOutOfRange is returned by Encode for ids that do not fit the scheme
	ErrOutOfRange = errors.New("aid out of encodable range")
)

var digitOf = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		t[alphabet[i]] = int8(i)
	}
	return t
}()

func swap(b []byte) {
	b[3], b[9] = b[9], b[3]
	b[4], b[7] = b[7], b[4]
}

// Decode returns the AV id encoded in code. On failure it returns 0 and
// ErrInvalidShortcode.
func Decode(code string) (int64, error) {
	if len(code) != codeLen {
		return 0, ErrInvalidShortcode
	}
	b := []byte(code)
	swap(b)

	var acc int64
	for _, c := range b[3:] {
		d := digitOf[c]
		if d < 0 {
			return 0, ErrInvalidShortcode
		}
		acc = acc*base + int64(d)
	}
	return (acc & maskCode) ^ xorCode, nil
}

// Encode returns the BV shortcode of aid
func Encode(aid int64) (string, error) {
	if aid <= 0 || aid >= maxAID {
		return "", ErrOutOfRange
	}
	b := []byte(prefix + strings.Repeat("0", codeLen-len(prefix)))
	t := (aid | maxAID) ^ xorCode
	for i := codeLen - 1; i >= len(prefix); i-- {
		b[i] = alphabet[t%base]
		t /= base
	}
	swap(b)
	return string(b), nil
}

// Valid reports whether code has the BV1 prefix and decodes cleanly
func Valid(code string) bool {
	if !strings.HasPrefix(code, "BV1") {
		return false
	}
	_, err := Decode(code)
	return err == nil
}

// Package wbi implements the platform's WBI request signature.
//
// A signed request carries wts (unix seconds) and w_rid, the MD5 of the
// sorted, sanitized query string followed by a 32-character mixin key. The
// mixin key is scattered out of two keys published by the nav endpoint;
// KeyCache fetches and holds them.
package wbi

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// mixinPermutation picks characters of imgKey+subKey into the mixin key.
// Any change here invalidates every signature.
var mixinPermutation = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35, 27, 43, 5, 49,
	33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13, 37, 48, 7, 16, 24, 55, 40,
	61, 26, 17, 0, 1, 60, 51, 30, 4, 22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11,
	36, 20, 34, 44, 52,
}

const mixinKeyLength = 32

// KeyPair is the (img_key, sub_key) pair published by the nav endpoint
type KeyPair struct {
	ImgKey string
	SubKey string
}

// Empty reports whether the pair is unusable
func (p KeyPair) Empty() bool {
	return p.ImgKey == "" && p.SubKey == ""
}

// MixinKey derives the 32-character signing key. Table entries past the end
// of the concatenated keys are skipped.
func MixinKey(p KeyPair) string {
	orig := p.ImgKey + p.SubKey
	var b strings.Builder
	b.Grow(mixinKeyLength)
	for _, idx := range mixinPermutation {
		if idx < len(orig) {
			b.WriteByte(orig[idx])
		}
	}
	key := b.String()
	if len(key) > mixinKeyLength {
		key = key[:mixinKeyLength]
	}
	return key
}

// sanitize drops the characters the platform strips before hashing
func sanitize(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '!', '\'', '(', ')', '*':
			return -1
		}
		return r
	}, v)
}

// Sign returns the encoded query for params with wts and w_rid appended.
// params is not modified. Only the first value of each key is signed.
func Sign(params url.Values, mixinKey string, ts time.Time) string {
	signed := make(map[string]string, len(params)+1)
	for k, vs := range params {
		v := ""
		if len(vs) > 0 {
			v = vs[0]
		}
		signed[k] = sanitize(v)
	}
	signed["wts"] = strconv.FormatInt(ts.Unix(), 10)

	keys := make([]string, 0, len(signed))
	for k := range signed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(signed[k]))
	}
	query := b.String()

	sum := md5.Sum([]byte(query + mixinKey))
	return query + "&w_rid=" + hex.EncodeToString(sum[:])
}

// Package codec implements the reversible transform applied to every QR
// payload before it leaves the terminal: each rune's code point is shifted by
// a fixed offset, then the UTF-8 bytes of the shifted string are base64
// encoded. Decoding reverses both steps.
//
// This is obfuscation, not encryption. There is no key; anyone who knows the
// offset can invert it.
package codec

import "encoding/base64"

// Offset is added to every rune on encode and subtracted on decode.
const Offset = 3

// Invalid is returned by Decode when the token is not valid base64.
const Invalid = "invalid data"

// Encode shifts every rune of text by Offset and base64-encodes the result.
// Shifting happens per rune, base64 per UTF-8 byte, so the round trip holds
// for non-Latin1 input as well.
func Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(shift(text, Offset)))
}

// Decode reverses Encode. Malformed base64 yields the Invalid sentinel
// instead of an error; camera payloads come from the outside world and the
// caller only ever displays the result.
func Decode(token string) string {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Invalid
	}
	return shift(string(raw), -Offset)
}

func shift(s string, by int) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, r+rune(by))
	}
	return string(out)
}

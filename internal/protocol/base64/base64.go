// Package base64 is the unpadded standard-alphabet codec used for file
// payloads. Decoding is lenient: it never fails.
package base64

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// decodeMap sends every byte outside the alphabet to 0.
var decodeMap = func() [256]byte {
	var m [256]byte
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = byte(i)
	}
	return m
}()

// EncodedLen is the unpadded length of n input bytes.
func EncodedLen(n int) int {
	return (n*8 + 5) / 6
}

// Encode renders src without '=' padding.
func Encode(src []byte) string {
	out := make([]byte, 0, EncodedLen(len(src)))
	i := 0
	for ; i+3 <= len(src); i += 3 {
		v := uint(src[i])<<16 | uint(src[i+1])<<8 | uint(src[i+2])
		out = append(out,
			alphabet[v>>18&0x3f],
			alphabet[v>>12&0x3f],
			alphabet[v>>6&0x3f],
			alphabet[v&0x3f])
	}
	switch len(src) - i {
	case 1:
		v := uint(src[i]) << 16
		out = append(out, alphabet[v>>18&0x3f], alphabet[v>>12&0x3f])
	case 2:
		v := uint(src[i])<<16 | uint(src[i+1])<<8
		out = append(out, alphabet[v>>18&0x3f], alphabet[v>>12&0x3f], alphabet[v>>6&0x3f])
	}
	return string(out)
}

// Decode reverses Encode. Trailing '=' is ignored, a single leftover symbol
// is dropped, and symbols outside the alphabet decode as 'A'.
func Decode(src string) []byte {
	for len(src) > 0 && src[len(src)-1] == '=' {
		src = src[:len(src)-1]
	}
	out := make([]byte, 0, len(src)*3/4)
	i := 0
	for ; i+4 <= len(src); i += 4 {
		v := uint(decodeMap[src[i]])<<18 |
			uint(decodeMap[src[i+1]])<<12 |
			uint(decodeMap[src[i+2]])<<6 |
			uint(decodeMap[src[i+3]])
		out = append(out, byte(v>>16), byte(v>>8), byte(v))
	}
	switch len(src) - i {
	case 2:
		v := uint(decodeMap[src[i]])<<18 | uint(decodeMap[src[i+1]])<<12
		out = append(out, byte(v>>16))
	case 3:
		v := uint(decodeMap[src[i]])<<18 |
			uint(decodeMap[src[i+1]])<<12 |
			uint(decodeMap[src[i+2]])<<6
		out = append(out, byte(v>>16), byte(v>>8))
	}
	return out
}

// Package names normalizes player names between their wire, storage and
// display forms.
package names

import "strings"

// MaxLength is the longest name the client can type.
const MaxLength = 12

// alphabet is the base-37 digit set used by NameToLong.
const alphabet = "_abcdefghijklmnopqrstuvwxyz0123456789"

// Protocol lowercases s and replaces spaces with underscores. The result is
// the storage key for an account.
func Protocol(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

// Display turns a protocol name into title case with spaces, so
// "john_doe" becomes "John Doe".
func Display(s string) string {
	b := []byte(strings.ReplaceAll(s, " ", "_"))
	upper := true
	for i, c := range b {
		if c == '_' {
			b[i] = ' '
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
		upper = false
	}
	return string(b)
}

// Normalize is Display(Protocol(s)).
func Normalize(s string) string {
	return Display(Protocol(s))
}

// Valid reports whether s is a usable protocol name: 1 to MaxLength
// characters from [a-z0-9_].
func Valid(s string) bool {
	if len(s) == 0 || len(s) > MaxLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// ToLong packs a name into the client's base-37 encoding. Characters
// outside the alphabet count as underscores and trailing underscores are
// dropped.
func ToLong(s string) int64 {
	var v int64
	for i := 0; i < len(s) && i < MaxLength; i++ {
		c := s[i]
		v *= 37
		switch {
		case c >= 'A' && c <= 'Z':
			v += int64(1 + c - 'A')
		case c >= 'a' && c <= 'z':
			v += int64(1 + c - 'a')
		case c >= '0' && c <= '9':
			v += int64(27 + c - '0')
		}
	}
	for v%37 == 0 && v != 0 {
		v /= 37
	}
	return v
}

// FromLong reverses ToLong. Invalid input yields "invalid_name".
func FromLong(v int64) string {
	if v <= 0 || v >= 6582952005840035281 {
		return "invalid_name"
	}
	if v%37 == 0 {
		return "invalid_name"
	}
	var buf [MaxLength]byte
	i := len(buf)
	for v != 0 && i > 0 {
		i--
		buf[i] = alphabet[v%37]
		v /= 37
	}
	return string(buf[i:])
}

// Hash is the 5-bit name hash a client sends in its login request.
func Hash(s string) uint8 {
	return uint8(ToLong(s)>>16) & 31
}

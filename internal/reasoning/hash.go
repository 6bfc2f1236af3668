package reasoning

import (
	"hash"
	"hash/fnv"
)

const windowBytes = 256

// BlockHash identifies a reasoning block by the first and last 256 bytes
// of its content plus the total length, truncated on a character (rune)
// boundary rather than a raw byte boundary so multi-byte UTF-8 sequences
// straddling the window are never split.
type BlockHash uint64

// HashContent computes the hash for a block's text content. Two blocks
// whose 256-byte prefix, 256-byte suffix, and length all match are
// treated as equal; collisions beyond that are accepted per the spec.
func HashContent(content string) BlockHash {
	prefix := truncateRunes(content, windowBytes, false)
	suffix := truncateRunes(content, windowBytes, true)

	h := fnv.New64a()
	h.Write([]byte(prefix))
	h.Write([]byte{0}) // separator: prevents prefix/suffix concatenation ambiguity
	h.Write([]byte(suffix))
	writeLength(h, len(content))

	return BlockHash(h.Sum64())
}

func writeLength(h hash.Hash64, n int) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(n >> (8 * i))
	}
	h.Write(buf[:])
}

// truncateRunes returns at most maxBytes bytes from the start (fromEnd =
// false) or end (fromEnd = true) of s, never splitting a rune. If s is
// shorter than maxBytes the whole string is returned, so content exactly
// at the window size is fully included in both windows, as required.
func truncateRunes(s string, maxBytes int, fromEnd bool) string {
	if len(s) <= maxBytes {
		return s
	}

	if !fromEnd {
		end := maxBytes
		for end > 0 && !isRuneStart(s, end) {
			end--
		}
		return s[:end]
	}

	start := len(s) - maxBytes
	for start < len(s) && !isRuneStart(s, start) {
		start++
	}
	return s[start:]
}

// isRuneStart reports whether byte offset i in s sits on a UTF-8 rune
// boundary (the start of a code point, or the end of the string).
func isRuneStart(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	// Continuation bytes have the high bits 10xxxxxx.
	return s[i]&0xC0 != 0x80
}

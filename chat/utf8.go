package chat

import "unicode/utf8"

// ReassemblyBuffer turns a stream of token byte fragments into valid UTF-8
// strings. Multi-byte characters can be split across tokens, so bytes that
// do not yet decode are held until more arrive. Once four or more bytes are
// buffered without forming valid UTF-8, the bytes cannot be the start of any
// single character and are replaced wholesale.
type ReassemblyBuffer struct {
	buf []byte
}

// Feed appends p and attempts to decode the buffered bytes. It returns the
// decoded string and true when output is ready, or "" and false while bytes
// are pending.
func (b *ReassemblyBuffer) Feed(p []byte) (string, bool) {
	b.buf = append(b.buf, p...)
	if len(b.buf) == 0 {
		return "", false
	}
	if utf8.Valid(b.buf) {
		s := string(b.buf)
		b.buf = b.buf[:0]
		return s, true
	}
	if len(b.buf) >= 4 {
		b.buf = b.buf[:0]
		return string(utf8.RuneError), true
	}
	return "", false
}

// Pending reports whether undecoded bytes are buffered.
func (b *ReassemblyBuffer) Pending() bool { return len(b.buf) > 0 }

// Reset discards any buffered bytes.
func (b *ReassemblyBuffer) Reset() { b.buf = b.buf[:0] }

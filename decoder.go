package luminote

import (
	"strings"
	"unicode/utf8"
)

// utf8Decoder turns a sequence of byte chunks into text without corrupting
// multi-byte characters split across chunk boundaries. Incomplete trailing
// sequences are held until the next chunk; invalid bytes decode to U+FFFD.
type utf8Decoder struct {
	pending []byte
}

// Decode returns the text that is complete after appending chunk.
func (d *utf8Decoder) Decode(chunk []byte) string {
	buf := append(d.pending, chunk...)
	cut := completePrefix(buf)

	d.pending = append(d.pending[:0:0], buf[cut:]...)
	return decodeValid(buf[:cut])
}

// Flush returns whatever is still held back. Called at end of stream.
func (d *utf8Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	out := decodeValid(d.pending)
	d.pending = nil
	return out
}

// decodeValid converts b to a string, replacing each maximal ill-formed
// subsequence with one U+FFFD, the same way a browser TextDecoder does.
// The output does not depend on how the input was split into chunks.
func decodeValid(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for i := 0; i < len(b); {
		if b[i] < utf8.RuneSelf {
			sb.WriteByte(b[i])
			i++
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		if r != utf8.RuneError || size > 1 {
			sb.Write(b[i : i+size])
			i += size
			continue
		}
		sb.WriteRune(utf8.RuneError)
		i += illFormedLen(b[i:])
	}
	return sb.String()
}

// illFormedLen returns the length of the ill-formed sequence at the start of
// b: a lead byte plus however many continuation bytes are still acceptable
// after it. A byte that cannot start a sequence counts alone.
func illFormedLen(b []byte) int {
	need := 0
	lo, hi := byte(0x80), byte(0xBF)
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c == 0xF4:
		need, hi = 3, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	default:
		return 1
	}

	n := 1
	for n <= need && n < len(b) && b[n] >= lo && b[n] <= hi {
		lo, hi = 0x80, 0xBF
		n++
	}
	return n
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a possibly-valid multi-byte sequence.
func completePrefix(b []byte) int {
	// A UTF-8 sequence is at most 4 bytes, so only the last 3 bytes can
	// start an incomplete one.
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		start := len(b) - i
		c := b[start]
		if c < utf8.RuneSelf {
			// ASCII: everything up to here is complete
			return len(b)
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[start:]) {
				return start
			}
			return len(b)
		}
	}
	return len(b)
}

// frameBuffer accumulates decoded text and hands out complete SSE frames.
type frameBuffer struct {
	decoder utf8Decoder
	text    strings.Builder
}

// Write decodes chunk and appends it to the buffer.
func (f *frameBuffer) Write(chunk []byte) {
	f.text.WriteString(f.decoder.Decode(chunk))
}

// Frames removes and returns all complete frames; a trailing partial frame
// stays buffered.
func (f *frameBuffer) Frames() []string {
	buf := f.text.String()
	var frames []string
	for {
		frame, rest, ok := nextFrame(buf)
		if !ok {
			break
		}
		frames = append(frames, frame)
		buf = rest
	}
	if frames != nil {
		f.text.Reset()
		f.text.WriteString(buf)
	}
	return frames
}

// Flush drains the decoder at end of stream.
func (f *frameBuffer) Flush() {
	f.text.WriteString(f.decoder.Flush())
}

// Remaining returns the unterminated tail.
func (f *frameBuffer) Remaining() string {
	return f.text.String()
}

package maple

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFrameFormat is wrapped by every Decode failure. Format errors are not
// transport errors: the connection is presumed intact and the caller decides
// whether to drop the frame or tear the link down.
var ErrFrameFormat = errors.New("maple: malformed frame")

// Terminator ends every encoded frame line. It is the sole framing
// delimiter; there is no length prefix.
const Terminator = "\r\n"

const hexDigits = "0123456789ABCDEF"

// Encode renders f as one protocol line: command, dest, origin and word
// count followed by exactly WordCount*4 payload bytes, each as two uppercase
// hex digits, space separated, CRLF terminated.
func Encode(f *Frame) string {
	var b strings.Builder
	b.Grow(4*3 + f.DataLen()*3 + 2)
	writeHexByte(&b, f.Command)
	b.WriteByte(' ')
	writeHexByte(&b, f.DestAddr)
	b.WriteByte(' ')
	writeHexByte(&b, f.OriginAddr)
	b.WriteByte(' ')
	writeHexByte(&b, f.WordCount)
	for _, d := range f.Data() {
		b.WriteByte(' ')
		writeHexByte(&b, d)
	}
	b.WriteString(Terminator)
	return b.String()
}

// Decode parses one protocol line (with or without its terminator) into a
// Frame. It never reads past the supplied text nor writes past the payload
// capacity: a word count whose payload would exceed PayloadCap is rejected
// before any payload token is touched, and the line must carry exactly
// 4 + WordCount*4 tokens — fewer means truncation, more means the stream is
// desynchronized. All failures wrap ErrFrameFormat.
func Decode(line string) (*Frame, error) {
	line = strings.TrimSuffix(line, Terminator)
	tokens := strings.Fields(line)
	if len(tokens) < 4 {
		return nil, fmt.Errorf("%w: %d header tokens, want 4", ErrFrameFormat, len(tokens))
	}

	var hdr [4]byte
	for i := 0; i < 4; i++ {
		v, err := parseHexByte(tokens[i])
		if err != nil {
			return nil, err
		}
		hdr[i] = v
	}

	f := &Frame{
		Command:    hdr[0],
		DestAddr:   hdr[1],
		OriginAddr: hdr[2],
		WordCount:  hdr[3],
	}

	n := f.DataLen()
	if n > PayloadCap {
		return nil, fmt.Errorf("%w: word count %d exceeds payload capacity", ErrFrameFormat, f.WordCount)
	}
	if got := len(tokens) - 4; got < n {
		return nil, fmt.Errorf("%w: truncated payload, got %d bytes, want %d", ErrFrameFormat, got, n)
	} else if got > n {
		return nil, fmt.Errorf("%w: trailing data, got %d bytes, want %d", ErrFrameFormat, got, n)
	}
	for i := 0; i < n; i++ {
		v, err := parseHexByte(tokens[4+i])
		if err != nil {
			return nil, err
		}
		f.Payload[i] = v
	}
	return f, nil
}

func writeHexByte(b *strings.Builder, v byte) {
	b.WriteByte(hexDigits[v>>4])
	b.WriteByte(hexDigits[v&0x0F])
}

func parseHexByte(tok string) (byte, error) {
	if len(tok) != 2 {
		return 0, fmt.Errorf("%w: token %q is not a 2-digit hex byte", ErrFrameFormat, tok)
	}
	hi := hexVal(tok[0])
	lo := hexVal(tok[1])
	if hi < 0 || lo < 0 {
		return 0, fmt.Errorf("%w: token %q is not a 2-digit hex byte", ErrFrameFormat, tok)
	}
	return byte(hi<<4 | lo), nil
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return -1
	}
}

package frame

import (
	"bytes"
	"sort"
	"strconv"
	"unicode/utf8"
)

const (
	newline   = '\n'
	carriage  = '\r'
	null      = 0x00
	backslash = '\\'
	colon     = ':'
)

// headerEscapes mirrors stompman's HEADER_ESCAPE_CHARS: every byte that
// cannot appear literally in a header name or value once serialized.
var headerEscapes = map[byte]string{
	newline:   `\n`,
	colon:     `\c`,
	backslash: `\\`,
	carriage:  "", // CR-then-LF is a line terminator; CR alone can't survive a header
}

// headerUnescapes mirrors HEADER_UNESCAPE_CHARS: the byte that follows a
// backslash in an escaped header.
var headerUnescapes = map[byte]byte{
	'n': newline,
	'c': colon,
	backslash: backslash,
}

func escapeHeaderComponent(s string) string {
	var b bytes.Buffer
	for i := 0; i < len(s); i++ {
		c := s[i]
		if esc, ok := headerEscapes[c]; ok {
			b.WriteString(esc)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func dumpHeaderLine(key, value string, escape bool) []byte {
	if escape {
		key = escapeHeaderComponent(key)
		value = escapeHeaderComponent(value)
	}
	var b bytes.Buffer
	b.WriteString(key)
	b.WriteByte(colon)
	b.WriteString(value)
	b.WriteByte(newline)
	return b.Bytes()
}

// Dump serializes f to its wire representation: command, sorted header
// lines, a blank line, the body (if any), and a trailing NUL. Header values
// are escaped per the STOMP 1.2 escape table, except for CONNECT/STOMP
// frames, which the spec requires to be sent unescaped.
func Dump(f Frame) []byte {
	escape := f.Command != CommandConnect && f.Command != CommandStomp

	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(string(f.Command))
	buf.WriteByte(newline)
	for _, k := range keys {
		buf.Write(dumpHeaderLine(k, f.Headers[k], escape))
	}
	buf.WriteByte(newline)
	if f.Command.HasBody() {
		buf.Write(f.Body)
	}
	buf.WriteByte(null)
	return buf.Bytes()
}

// parseHeaderLine decodes a single unescaped header line of the form
// "key:value" into its key/value pair. It returns ok=false for a malformed
// line (no colon, or more than one unescaped colon acting as a separator)
// or when the decoded bytes are not valid UTF-8 — both cases the wire
// format treats as "drop this header line", not "fail the frame".
func parseHeaderLine(line []byte) (key, value string, ok bool) {
	keyBuf := make([]byte, 0, len(line))
	valBuf := make([]byte, 0, len(line))
	keyParsed := false

	var prev byte
	hasPrev := false
	justEscaped := false

	for i := 0; i < len(line); i++ {
		b := line[i]
		switch {
		case b == colon:
			if keyParsed {
				return "", "", false
			}
			keyParsed = true
		case justEscaped:
			justEscaped = false
			if b != backslash {
				if keyParsed {
					valBuf = append(valBuf, b)
				} else {
					keyBuf = append(keyBuf, b)
				}
			}
		default:
			unescaped, escByte := unescapeByte(b, prev, hasPrev)
			if escByte {
				justEscaped = true
				if keyParsed {
					valBuf = append(valBuf, unescaped)
				} else {
					keyBuf = append(keyBuf, unescaped)
				}
			}
		}
		prev = b
		hasPrev = true
	}

	if !keyParsed {
		return "", "", false
	}
	if !bytesValidUTF8(keyBuf) || !bytesValidUTF8(valBuf) {
		return "", "", false
	}
	return string(keyBuf), string(valBuf), true
}

// unescapeByte mirrors serde.py's unescape_byte: a backslash preceding a
// recognized escape code resolves to the unescaped byte; a bare backslash
// is swallowed pending the next byte; anything else passes through as-is.
func unescapeByte(b, prev byte, hasPrev bool) (out byte, ok bool) {
	if hasPrev && prev == backslash {
		unescaped, known := headerUnescapes[b]
		if !known {
			return 0, false
		}
		return unescaped, true
	}
	if b == backslash {
		return 0, false
	}
	return b, true
}

func bytesValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// makeFrame builds a typed Frame from a command/headers/body triple parsed
// off the wire.
func makeFrame(command Command, headers Headers, body []byte) Frame {
	if command.HasBody() {
		return NewWithBody(command, headers, body)
	}
	return New(command, headers)
}

func parseContentLength(v string) (int, bool) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

package stomp

import (
	"bytes"
	"fmt"
	"strings"
)

// Frame is a single STOMP frame: a command, header lines, and an optional
// body terminated by a NUL octet on the wire.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

var (
	headerEscaper   = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")
	headerUnescaper = strings.NewReplacer("\\\\", "\\", "\\r", "\r", "\\n", "\n", "\\c", ":")
)

// encode renders the frame in STOMP 1.2 wire form.
func (f Frame) encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	for k, v := range f.Headers {
		buf.WriteString(headerEscaper.Replace(k))
		buf.WriteByte(':')
		buf.WriteString(headerEscaper.Replace(v))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// parseFrame decodes one frame from data. The trailing NUL is optional so
// lenient servers are tolerated, and lines may end in LF or CRLF as STOMP
// 1.2 allows either.
func parseFrame(data []byte) (Frame, error) {
	data = bytes.TrimSuffix(data, []byte{0})
	head, body := splitFrame(data)

	lines := strings.Split(string(head), "\n")
	command := strings.TrimSuffix(lines[0], "\r")
	if command == "" {
		return Frame{}, fmt.Errorf("empty command")
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, fmt.Errorf("malformed header %q", line)
		}
		// Repeated headers keep the first value, per the STOMP spec.
		key := headerUnescaper.Replace(k)
		if _, dup := headers[key]; !dup {
			headers[key] = headerUnescaper.Replace(v)
		}
	}

	return Frame{Command: command, Headers: headers, Body: body}, nil
}

// splitFrame cuts data at the first blank line, whichever framing the
// server uses, and returns the command/header preamble and the verbatim
// body after it.
func splitFrame(data []byte) (head, body []byte) {
	for i := 0; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		rest := data[i+1:]
		switch {
		case len(rest) > 0 && rest[0] == '\n':
			return data[:i], rest[1:]
		case len(rest) > 1 && rest[0] == '\r' && rest[1] == '\n':
			return data[:i], rest[2:]
		}
	}
	return data, nil
}

// errorText extracts the most useful description from an ERROR frame.
func errorText(f Frame) string {
	if msg := f.Headers["message"]; msg != "" {
		return msg
	}
	if len(f.Body) > 0 {
		return string(bytes.TrimSpace(f.Body))
	}
	return "unspecified error"
}

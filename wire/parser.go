package wire

import (
	"bytes"
	"strconv"
)

var (
	crlf        = []byte("\r\n")
	protoPrefix = []byte("MCHAT/")
)

// Parse runs the MChat line-oriented state machine over buf and returns the
// resulting Record. Parse errors other than a malformed protocol literal are
// recoverable: they accumulate in Record.ParseErrors and the Record is
// still returned for the caller to inspect or Validate. A malformed
// protocol literal is fatal: Parse returns ErrFatalParse and the scan does
// not proceed past the protocol line.
//
// The returned Record's Headers and Body alias buf; see Record.Clone if the
// Record must outlive buf.
func Parse(buf []byte) (*Record, error) {
	rec := &Record{TotalSize: len(buf)}

	pos := 0
	line, next, _ := readLine(buf, pos)
	pos = next

	if err := parseProtocolLine(rec, line); err != nil {
		return rec, err
	}

	pos = parseHeaders(rec, buf, pos)
	parseBody(rec, buf, pos)

	return rec, nil
}

// readLine returns the bytes up to (but not including) the next CRLF
// starting at pos, the position immediately after that CRLF, and whether a
// CRLF was actually found. If no CRLF is found, the remainder of buf is
// returned as the line and found is false.
func readLine(buf []byte, pos int) (line []byte, next int, found bool) {
	if pos > len(buf) {
		return nil, len(buf), false
	}
	rest := buf[pos:]
	if idx := bytes.Index(rest, crlf); idx >= 0 {
		return rest[:idx], pos + idx + 2, true
	}
	return rest, len(buf), false
}

func parseProtocolLine(rec *Record, line []byte) error {
	sp := bytes.IndexByte(line, ' ')
	var kindTok, protoTok []byte
	if sp < 0 {
		kindTok = line
	} else {
		kindTok = line[:sp]
		protoTok = bytes.TrimSpace(line[sp+1:])
	}

	if k, ok := ParseKind(string(kindTok)); ok {
		rec.Kind = k
	} else {
		rec.Kind = KindNone
		rec.ParseErrors |= InvalidType
	}

	if !bytes.HasPrefix(protoTok, protoPrefix) {
		rec.ParseErrors |= InvalidProtocol
		return ErrFatalParse
	}

	verStr := protoTok[len(protoPrefix):]
	major, minor, ok := parseVersion(verStr)
	if !ok {
		rec.ParseErrors |= InvalidVersion
	}
	rec.Version = Version{Major: major, Minor: minor}
	return nil
}

// parseVersion accepts exactly "M.m" where M and m are single ASCII digits.
func parseVersion(s []byte) (major, minor uint8, ok bool) {
	if len(s) != 3 || s[1] != '.' {
		return 0, 0, false
	}
	if s[0] < '0' || s[0] > '9' || s[2] < '0' || s[2] > '9' {
		return 0, 0, false
	}
	return s[0] - '0', s[2] - '0', true
}

// parseHeaders consumes header lines starting at pos until the blank line
// that terminates the header block (or end of input), returning the
// position immediately after that blank line's CRLF.
func parseHeaders(rec *Record, buf []byte, pos int) int {
	for {
		line, next, found := readLine(buf, pos)
		if len(line) == 0 {
			// Blank line: end of header block.
			return next
		}
		if !found {
			// Ran out of input without a terminating blank line.
			return next
		}
		parseHeaderLine(rec, line)
		pos = next
	}
}

func parseHeaderLine(rec *Record, line []byte) {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		rec.ParseErrors |= UnknownHeader
		return
	}
	name := line[:colon]
	value := bytes.TrimLeft(line[colon+1:], " \t")

	h, ok := ParseHeaderKind(string(name))
	if !ok {
		rec.ParseErrors |= UnknownHeader
		return
	}

	if !validateHeaderValue(h, value) {
		rec.ParseErrors |= IncorrectHeaderValue
	}
	rec.Headers[h] = value

	if h == HeaderLength {
		if n, err := strconv.Atoi(string(value)); err == nil && n >= 0 {
			rec.Length = n
		}
	}
}

func validateHeaderValue(h HeaderKind, value []byte) bool {
	switch h {
	case HeaderNickname:
		return len(value) <= maxNicknameLen
	case HeaderChannel:
		return len(value) <= maxChannelLen
	case HeaderAddress:
		return len(value) <= maxAddressLen
	case HeaderPort:
		return len(value) <= maxPortDigits
	default:
		return true
	}
}

func parseBody(rec *Record, buf []byte, pos int) {
	if pos >= len(buf) {
		return
	}
	remaining := buf[pos:]

	if rec.Header(HeaderLength) == nil {
		rec.Body = remaining
		return
	}

	if rec.Length > len(remaining) {
		rec.ParseErrors |= InvalidBodySize
		rec.Body = remaining
		return
	}
	rec.Body = remaining[:rec.Length]
}

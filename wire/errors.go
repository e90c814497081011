package wire

import "fmt"

// ParseFlags is a bitmask of recoverable parser errors accumulated over a
// single scan. Every bit except InvalidProtocol is recoverable: the record
// is still returned and may still validate successfully (see S3 in the
// protocol's test scenarios, an unknown header alongside an otherwise valid
// TEXT message).
type ParseFlags uint8

const (
	// InvalidType is set when the protocol line's kind token does not match
	// any known Kind; the record's Kind is left at KindNone.
	InvalidType ParseFlags = 1 << iota
	// InvalidProtocol is set when the protocol line's literal ("MCHAT/")
	// does not match. This is the only flag that aborts the scan.
	InvalidProtocol
	// InvalidVersion is set when the M.m version digits could not be parsed.
	InvalidVersion
	// UnknownHeader is set when a header line's name does not match any
	// known HeaderKind. The line is skipped; the scan continues.
	UnknownHeader
	// IncorrectHeaderValue is set when a header's value failed its
	// per-header length validator.
	IncorrectHeaderValue
	// InvalidBodySize is set when a declared Length would overflow the
	// remaining input; the body is clamped to what is actually present.
	InvalidBodySize
)

func (f ParseFlags) Has(bit ParseFlags) bool { return f&bit != 0 }

func (f ParseFlags) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		bit  ParseFlags
		name string
	}{
		{InvalidType, "InvalidType"},
		{InvalidProtocol, "InvalidProtocol"},
		{InvalidVersion, "InvalidVersion"},
		{UnknownHeader, "UnknownHeader"},
		{IncorrectHeaderValue, "IncorrectHeaderValue"},
		{InvalidBodySize, "InvalidBodySize"},
	}
	s := ""
	for _, n := range names {
		if f.Has(n.bit) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	return s
}

// ValidationFlags is a bitmask of post-parse validation failures.
type ValidationFlags uint8

const (
	// RequiredHeaderMissing is set when one or more headers required by the
	// record's Kind carry no value.
	RequiredHeaderMissing ValidationFlags = 1 << iota
	// BadMessageType is set when the record's Kind is KindNone.
	BadMessageType
)

func (f ValidationFlags) Has(bit ValidationFlags) bool { return f&bit != 0 }

func (f ValidationFlags) String() string {
	if f == 0 {
		return "none"
	}
	s := ""
	if f.Has(RequiredHeaderMissing) {
		s += "RequiredHeaderMissing"
	}
	if f.Has(BadMessageType) {
		if s != "" {
			s += "|"
		}
		s += "BadMessageType"
	}
	return s
}

// ErrFatalParse is returned by Parse when InvalidProtocol was encountered;
// the scan was aborted and the returned record, if any, is not usable.
var ErrFatalParse = fmt.Errorf("wire: fatal parse error: invalid protocol literal")

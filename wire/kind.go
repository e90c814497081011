// Package wire implements the MChat textual wire format: the message-kind
// and header-kind tables, the parser, the post-parse validator and the
// serializer. A message is one UDP datagram: a protocol line, header lines
// and a blank line, each terminated by CRLF, followed by an optional body.
package wire

import "strings"

// Kind identifies the four-character message type carried on the protocol
// line of a message ("TEXT", "FILE", "PING", "CDSC"). KindNone is the
// sentinel returned when the protocol line could not be matched.
type Kind int

const (
	KindNone Kind = iota
	KindText
	KindFile
	KindPing
	KindCDSC

	numKinds
)

// kindNames is the canonical, uppercase, four-character wire spelling for
// each Kind. Matching on input is case-insensitive; this table is also used
// for emission, so its case is authoritative.
var kindNames = [numKinds]string{
	KindNone: "NONE",
	KindText: "TEXT",
	KindFile: "FILE",
	KindPing: "PING",
	KindCDSC: "CDSC",
}

// String returns the canonical wire spelling of k, or "NONE" for any
// unrecognized value.
func (k Kind) String() string {
	if k < 0 || int(k) >= int(numKinds) {
		return kindNames[KindNone]
	}
	return kindNames[k]
}

// ParseKind matches s against the canonical kind names case-insensitively.
// It returns KindNone and false if no kind matches.
func ParseKind(s string) (Kind, bool) {
	for k := Kind(1); k < numKinds; k++ {
		if strings.EqualFold(kindNames[k], s) {
			return k, true
		}
	}
	return KindNone, false
}

// requiredHeaders lists, in canonical declaration order, the headers a
// message of each Kind must carry for Validate to accept it. The order also
// governs the emission order in the serializer.
var requiredHeaders = [numKinds][]HeaderKind{
	KindNone: {},
	KindText: {HeaderNickname, HeaderLength, HeaderChannel},
	KindFile: {HeaderNickname, HeaderLength, HeaderFilename, HeaderFilesum, HeaderChunk, HeaderChunkcount, HeaderChunksum},
	KindPing: {HeaderNickname, HeaderChannel},
	KindCDSC: {HeaderChannel, HeaderAddress, HeaderPort},
}

// RequiredHeaders returns the headers required for k, in canonical order.
// The returned slice must not be mutated by callers.
func RequiredHeaders(k Kind) []HeaderKind {
	if k < 0 || int(k) >= int(numKinds) {
		return nil
	}
	return requiredHeaders[k]
}

// HasBody reports whether messages of kind k carry a body, which by
// definition is exactly the kinds that require a Length header.
func HasBody(k Kind) bool {
	for _, h := range requiredHeaders[k] {
		if h == HeaderLength {
			return true
		}
	}
	return false
}

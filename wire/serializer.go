package wire

import (
	"bytes"
	"strconv"
)

// WireMajor and WireMinor are the protocol version advertised on every
// message this implementation emits.
const (
	WireMajor = 1
	WireMinor = 0
)

const notConnectedChannel = "<Not Connected>"

// State is the subset of engine state the serializer needs to format a
// message. ChannelAddress is the already-stringified dotted-quad form.
// Body is the currently armed outbound body, or nil if nothing is armed
// (Length is then emitted as 0 and no body bytes follow).
type State struct {
	Nickname       string
	Connected      bool
	ChannelName    string
	ChannelAddress string
	ChannelPort    uint16
	Body           []byte
}

// Serialize emits the canonical wire bytes for kind given st: the protocol
// line, each header kind requires in canonical declaration order, the
// blank-line terminator, and the body if kind has one and st.Body is armed.
//
// Address and Port are only emitted when st.Connected is true, even if kind
// requires them; callers must arrange to only serialize such kinds (CDSC)
// while connected.
func Serialize(kind Kind, st State) []byte {
	var buf bytes.Buffer

	buf.WriteString(kind.String())
	buf.WriteByte(' ')
	buf.WriteString("MCHAT/")
	buf.WriteByte('0' + WireMajor)
	buf.WriteByte('.')
	buf.WriteByte('0' + WireMinor)
	buf.WriteString("\r\n")

	for _, h := range RequiredHeaders(kind) {
		value, ok := headerValue(h, st)
		if !ok {
			continue
		}
		buf.WriteString(h.String())
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}

	buf.WriteString("\r\n")

	if HasBody(kind) && st.Body != nil {
		buf.Write(st.Body)
	}

	return buf.Bytes()
}

func headerValue(h HeaderKind, st State) (string, bool) {
	switch h {
	case HeaderNickname:
		return st.Nickname, true
	case HeaderLength:
		return strconv.Itoa(len(st.Body)), true
	case HeaderChannel:
		if st.Connected {
			return st.ChannelName, true
		}
		return notConnectedChannel, true
	case HeaderAddress:
		if !st.Connected {
			return "", false
		}
		return st.ChannelAddress, true
	case HeaderPort:
		if !st.Connected {
			return "", false
		}
		return strconv.Itoa(int(st.ChannelPort)), true
	default:
		return "", false
	}
}

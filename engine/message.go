package engine

import (
	"net/netip"
	"time"
)

// Message is a TEXT message delivered to RecvMessage: the body plus the
// metadata the sender's frame carried and the local arrival timestamp.
type Message struct {
	Nickname   string
	Channel    string
	Body       []byte
	ReceivedAt time.Time
	Source     netip.Addr
}

package engine

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mreese3/libmchat/channel"
	"github.com/mreese3/libmchat/internal/logging"
	"github.com/mreese3/libmchat/metrics"
	"github.com/mreese3/libmchat/peer"
	"github.com/mreese3/libmchat/pkg/mcherr"
	"github.com/mreese3/libmchat/wire"
)

const (
	keepaliveInterval  = 3 * time.Second
	peerExpiry         = 5 * keepaliveInterval // 15s
	cdscInterval       = 10 * time.Second
	discoveredExpiry   = 5 * cdscInterval // 50s
	commonPollInterval = 100 * time.Millisecond
	maxDatagramSize    = 65535
)

// sender is the write side of a multicast socket; *netmc.Sender satisfies
// it. Workers depend on this interface rather than the concrete type so
// tests can exercise send ordering and error handling without a real
// socket.
type sender interface {
	WriteTo(b []byte) error
}

// receiver is the read side of a multicast socket; *netmc.Receiver
// satisfies it.
type receiver interface {
	ReadFrom(buf []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

func addrToNetip(a net.Addr) netip.Addr {
	udp, ok := a.(*net.UDPAddr)
	if !ok {
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(udp.IP.To4())
	if !ok {
		return netip.Addr{}
	}
	return addr
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// parseFlagNames lists every individual ParseFlags bit alongside its name,
// for per-flag metric attribution (ParseFlags.String() joins them with
// "|", which isn't a usable label value).
var parseFlagNames = []struct {
	bit  wire.ParseFlags
	name string
}{
	{wire.InvalidType, "InvalidType"},
	{wire.InvalidProtocol, "InvalidProtocol"},
	{wire.InvalidVersion, "InvalidVersion"},
	{wire.UnknownHeader, "UnknownHeader"},
	{wire.IncorrectHeaderValue, "IncorrectHeaderValue"},
	{wire.InvalidBodySize, "InvalidBodySize"},
}

// recordParseErrors increments m.ParseErrors once per flag set in flags.
func recordParseErrors(m *metrics.Collectors, flags wire.ParseFlags) {
	if m == nil || flags == 0 {
		return
	}
	for _, f := range parseFlagNames {
		if flags.Has(f.bit) {
			m.ParseErrors.WithLabelValues(f.name).Inc()
		}
	}
}

// recordValidationFailure increments m.ParseErrors under a "validation"
// label when a record parsed cleanly but failed post-parse validation
// (e.g. a required header was empty or absent).
func recordValidationFailure(m *metrics.Collectors) {
	if m == nil {
		return
	}
	m.ParseErrors.WithLabelValues("ValidationFailed").Inc()
}

// outboundText is one armed send_message payload, carried through the
// text-send worker's single-slot (capacity-1) channel.
type outboundText struct {
	Body     []byte
	Nickname string
}

// textSendWorker is the Text-Send suture service: it emits PING keepalives
// and TEXT frames on the connected channel's group.
type textSendWorker struct {
	snd         sender
	nicknameFn  func() string
	stealthFn   func() bool
	channelName string
	outbound    chan outboundText
	alive       atomic.Bool
	metrics     *metrics.Collectors
	log         *logging.Logger
}

func newTextSendWorker(snd sender, channelName string, nicknameFn func() string, stealthFn func() bool, m *metrics.Collectors, l *logging.Logger) *textSendWorker {
	return &textSendWorker{
		snd:         snd,
		nicknameFn:  nicknameFn,
		stealthFn:   stealthFn,
		channelName: channelName,
		outbound:    make(chan outboundText, 1),
		metrics:     m,
		log:         l,
	}
}

func (w *textSendWorker) Serve(ctx context.Context) error {
	w.alive.Store(true)
	defer w.alive.Store(false)

	if !w.stealthFn() {
		for i := 0; i < 3; i++ {
			if err := w.sendPing(); err != nil {
				return mcherr.NewSocketError("text-send", err)
			}
		}
	}

	timer := time.NewTimer(keepaliveInterval)
	defer timer.Stop()

	for {
		// TEXT takes priority: if the slot is already armed, serve it before
		// considering the keepalive timeout.
		select {
		case msg := <-w.outbound:
			if err := w.sendText(msg); err != nil {
				return mcherr.NewSocketError("text-send", err)
			}
		default:
			select {
			case <-ctx.Done():
				return nil
			case msg := <-w.outbound:
				if err := w.sendText(msg); err != nil {
					return mcherr.NewSocketError("text-send", err)
				}
			case <-timer.C:
				if !w.stealthFn() {
					if err := w.sendPing(); err != nil {
						return mcherr.NewSocketError("text-send", err)
					}
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(keepaliveInterval)
				continue
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(keepaliveInterval)
	}
}

func (w *textSendWorker) sendPing() error {
	st := wire.State{Nickname: w.nicknameFn(), Connected: true, ChannelName: w.channelName}
	err := w.snd.WriteTo(wire.Serialize(wire.KindPing, st))
	if err == nil && w.metrics != nil {
		w.metrics.MessagesSent.WithLabelValues("text-send", "PING").Inc()
	}
	return err
}

func (w *textSendWorker) sendText(msg outboundText) error {
	st := wire.State{Nickname: msg.Nickname, Connected: true, ChannelName: w.channelName, Body: msg.Body}
	err := w.snd.WriteTo(wire.Serialize(wire.KindText, st))
	if err == nil && w.metrics != nil {
		w.metrics.MessagesSent.WithLabelValues("text-send", "TEXT").Inc()
	}
	return err
}

// Send arms the single outbound slot, blocking until the worker drains a
// prior message if the slot is already full.
func (w *textSendWorker) Send(ctx context.Context, body []byte, nickname string) error {
	if !w.alive.Load() {
		return mcherr.ErrWorkerNotRunning
	}
	select {
	case w.outbound <- outboundText{Body: body, Nickname: nickname}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *textSendWorker) Running() bool { return w.alive.Load() }

// textRecvWorker is the Text-Recv suture service: it parses incoming
// datagrams on the connected channel's group, routes TEXT into the
// single-slot inbox and PING into the peer table.
type textRecvWorker struct {
	recv    receiver
	peers   *peer.Table
	inbox   chan Message
	alive   atomic.Bool
	metrics *metrics.Collectors
	log     *logging.Logger
}

func newTextRecvWorker(recv receiver, peers *peer.Table, m *metrics.Collectors, l *logging.Logger) *textRecvWorker {
	return &textRecvWorker{recv: recv, peers: peers, inbox: make(chan Message, 1), metrics: m, log: l}
}

func (w *textRecvWorker) Serve(ctx context.Context) error {
	w.alive.Store(true)
	defer w.alive.Store(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.recv.Close()
		case <-done:
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := w.recv.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return mcherr.NewSocketError("text-recv", err)
			}
		}

		receivedAt := time.Now()
		src := addrToNetip(addr)

		rec, perr := wire.Parse(buf[:n])
		if perr != nil {
			recordParseErrors(w.metrics, rec.ParseErrors)
			continue
		}
		recordParseErrors(w.metrics, rec.ParseErrors)
		if wire.Validate(rec) != 0 {
			recordValidationFailure(w.metrics)
			continue
		}

		switch rec.Kind {
		case wire.KindText:
			msg := Message{
				Nickname:   rec.HeaderString(wire.HeaderNickname),
				Channel:    rec.HeaderString(wire.HeaderChannel),
				Body:       append([]byte(nil), rec.Body...),
				ReceivedAt: receivedAt,
				Source:     src,
			}
			select {
			case w.inbox <- msg:
			case <-ctx.Done():
				return nil
			}
			w.peers.Update(src, msg.Nickname, msg.Channel)
			if w.metrics != nil {
				w.metrics.MessagesReceived.WithLabelValues("text-recv", "TEXT").Inc()
			}
		case wire.KindPing:
			w.peers.Update(src, rec.HeaderString(wire.HeaderNickname), rec.HeaderString(wire.HeaderChannel))
			if w.metrics != nil {
				w.metrics.MessagesReceived.WithLabelValues("text-recv", "PING").Inc()
			}
		}
	}
}

// Recv returns the next buffered TEXT message, or ok == false if the slot
// is currently empty. It never blocks.
func (w *textRecvWorker) Recv() (Message, bool) {
	select {
	case m := <-w.inbox:
		return m, true
	default:
		return Message{}, false
	}
}

func (w *textRecvWorker) Running() bool { return w.alive.Load() }

// commonSendWorker is the Common-Send suture service: it emits periodic
// PING presence beacons and, when connected to a non-default channel, CDSC
// discovery beacons.
type commonSendWorker struct {
	snd        sender
	nicknameFn func() string
	stealthFn  func() bool
	channels   *channel.Registry
	metrics    *metrics.Collectors
	log        *logging.Logger
}

func (w *commonSendWorker) Serve(ctx context.Context) error {
	if !w.stealthFn() {
		for i := 0; i < 3; i++ {
			if err := w.sendPing(); err != nil {
				return mcherr.NewSocketError("common-send", err)
			}
		}
	}

	pingTicker := time.NewTicker(keepaliveInterval)
	cdscTicker := time.NewTicker(cdscInterval)
	defer pingTicker.Stop()
	defer cdscTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pingTicker.C:
			if !w.stealthFn() {
				if err := w.sendPing(); err != nil {
					return mcherr.NewSocketError("common-send", err)
				}
			}
		case <-cdscTicker.C:
			name, connected := w.channels.Current()
			if w.stealthFn() || !connected || name == channel.DefaultName {
				continue
			}
			if err := w.sendCDSC(name); err != nil {
				return mcherr.NewSocketError("common-send", err)
			}
		}
	}
}

func (w *commonSendWorker) sendPing() error {
	name, connected := w.channels.Current()
	st := wire.State{Nickname: w.nicknameFn(), Connected: connected, ChannelName: name}
	err := w.snd.WriteTo(wire.Serialize(wire.KindPing, st))
	if err == nil && w.metrics != nil {
		w.metrics.MessagesSent.WithLabelValues("common-send", "PING").Inc()
	}
	return err
}

func (w *commonSendWorker) sendCDSC(name string) error {
	ch, ok := w.channels.AddedByName(name)
	if !ok {
		return nil
	}
	st := wire.State{Connected: true, ChannelName: ch.Name, ChannelAddress: ch.Address, ChannelPort: ch.Port}
	err := w.snd.WriteTo(wire.Serialize(wire.KindCDSC, st))
	if err == nil && w.metrics != nil {
		w.metrics.MessagesSent.WithLabelValues("common-send", "CDSC").Inc()
	}
	return err
}

// commonRecvWorker is the Common-Recv suture service: it parses incoming
// common-channel datagrams, routes PING into the peer table and CDSC into
// the channel registry, and runs both expiry sweeps every poll tick.
type commonRecvWorker struct {
	recv        receiver
	peers       *peer.Table
	channels    *channel.Registry
	sendRunning func() bool
	metrics     *metrics.Collectors
	log         *logging.Logger
}

func (w *commonRecvWorker) Serve(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		w.recv.SetReadDeadline(time.Now().Add(commonPollInterval))
		n, addr, err := w.recv.ReadFrom(buf)
		switch {
		case err == nil:
			w.handleDatagram(buf[:n], addrToNetip(addr))
		case isTimeout(err):
			if !w.sendRunning() {
				return mcherr.NewSocketError("common-recv", errors.New("common-send worker exited"))
			}
		default:
			return mcherr.NewSocketError("common-recv", err)
		}

		now := time.Now()
		w.peers.Expire(peerExpiry)
		w.channels.ExpireDiscovered(discoveredExpiry, now)
		if w.metrics != nil {
			w.metrics.PeerTableSize.Set(float64(w.peers.Len()))
			w.metrics.DiscoveredChannels.Set(float64(len(w.channels.Discovered())))
		}
	}
}

func (w *commonRecvWorker) handleDatagram(buf []byte, src netip.Addr) {
	rec, perr := wire.Parse(buf)
	if perr != nil {
		recordParseErrors(w.metrics, rec.ParseErrors)
		return
	}
	recordParseErrors(w.metrics, rec.ParseErrors)
	if wire.Validate(rec) != 0 {
		recordValidationFailure(w.metrics)
		return
	}

	switch rec.Kind {
	case wire.KindPing:
		// The channel field here reflects the sender's advertised current
		// channel (possibly "<Not Connected>"); treat it as advisory only.
		w.peers.Update(src, rec.HeaderString(wire.HeaderNickname), rec.HeaderString(wire.HeaderChannel))
		if w.metrics != nil {
			w.metrics.MessagesReceived.WithLabelValues("common-recv", "PING").Inc()
		}
	case wire.KindCDSC:
		port, _ := strconv.ParseUint(rec.HeaderString(wire.HeaderPort), 10, 16)
		w.channels.UpdateDiscovered(rec.HeaderString(wire.HeaderChannel), rec.HeaderString(wire.HeaderAddress), uint16(port), time.Now())
		if w.metrics != nil {
			w.metrics.MessagesReceived.WithLabelValues("common-recv", "CDSC").Inc()
		}
	}
}

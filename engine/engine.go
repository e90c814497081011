// Package engine implements the MChat protocol engine: the nickname,
// stealth flag, connection state, peer table and channel registry, and the
// four long-lived workers that send and receive on the common and text
// planes (spec.md §4.7).
package engine

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/suture/v4"

	"github.com/mreese3/libmchat/channel"
	"github.com/mreese3/libmchat/internal/logging"
	"github.com/mreese3/libmchat/metrics"
	"github.com/mreese3/libmchat/netmc"
	"github.com/mreese3/libmchat/peer"
	"github.com/mreese3/libmchat/pkg/mcherr"
)

const maxMessageSize = 32768

// Engine is the protocol engine described in spec.md §4.7. Construct one
// with New and release its resources with Destroy.
type Engine struct {
	nicknameMu sync.RWMutex
	nickname   string

	stealthMu sync.RWMutex
	stealth   bool

	channels *channel.Registry
	peers    *peer.Table
	metrics  *metrics.Collectors
	log      *logging.Logger

	sup       *suture.Supervisor
	ctx       context.Context
	cancel    context.CancelFunc
	supErrors <-chan error

	commonSend      *commonSendWorker
	commonSendToken suture.ServiceToken
	commonRecv      *commonRecvWorker
	commonRecvToken suture.ServiceToken

	connMu     sync.Mutex
	connected  bool
	textSend   *textSendWorker
	textSendTk suture.ServiceToken
	textRecv   *textRecvWorker
	textRecvTk suture.ServiceToken
}

// New constructs an Engine: it seeds the channel registry with #mchat,
// assigns a nickname (random if none was configured), and opens and starts
// the two common-channel workers. The caller must call Destroy when done.
func New(opts ...Option) (*Engine, error) {
	cfg := options{}
	for _, o := range opts {
		o(&cfg)
	}

	nickname := cfg.nickname
	if nickname == "" {
		nickname = randomNickname()
	}
	if len(nickname) > maxNicknameLen {
		nickname = nickname[:maxNicknameLen]
	}

	log := cfg.logger
	if log == nil {
		log = logging.Default
	}

	engineID := uuid.New().String()
	var m *metrics.Collectors
	if cfg.metricsRegisterer != nil {
		m = metrics.New(cfg.metricsRegisterer, engineID)
	}

	e := &Engine{
		nickname: nickname,
		stealth:  cfg.stealth,
		channels: channel.New(),
		peers:    peer.New(),
		metrics:  m,
		log:      log,
	}

	for _, ch := range cfg.channels {
		if _, err := e.channels.Add(ch.Name, ch.Address, ch.Port); err != nil {
			return nil, fmt.Errorf("engine: add configured channel %s: %w", ch.Name, err)
		}
	}

	commonSendSock, err := netmc.OpenSender(channel.CommonAddress, channel.CommonPort)
	if err != nil {
		return nil, fmt.Errorf("engine: open common send socket: %w", err)
	}
	commonRecvSock, err := netmc.OpenReceiver(channel.CommonAddress, channel.CommonPort)
	if err != nil {
		commonSendSock.Close()
		return nil, fmt.Errorf("engine: open common recv socket: %w", err)
	}

	e.commonSend = &commonSendWorker{
		snd:        commonSendSock,
		nicknameFn: e.Nickname,
		stealthFn:  e.Stealth,
		channels:   e.channels,
		metrics:    m,
		log:        log,
	}
	e.commonRecv = &commonRecvWorker{
		recv:        commonRecvSock,
		peers:       e.peers,
		channels:    e.channels,
		sendRunning: func() bool { return true }, // replaced below, after commonSend exists
		metrics:     m,
		log:         log,
	}
	e.commonRecv.sendRunning = e.commonSendAlive

	e.sup = suture.New("mchat", suture.Spec{
		EventHook: func(ev suture.Event) {
			log.Debugf("supervisor: %s", ev.String())
			if m != nil {
				m.WorkerRestarts.WithLabelValues(ev.Type().String()).Inc()
			}
		},
	})
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.supErrors = e.sup.ServeBackground(e.ctx)

	e.commonSendToken = e.sup.Add(e.commonSend)
	e.commonRecvToken = e.sup.Add(e.commonRecv)

	return e, nil
}

// commonSendAlive reports whether the Common-Send worker is still serving.
// It is approximate (suture does not expose per-service liveness directly)
// and is only used by Common-Recv to decide whether to give up after
// extended silence; a false positive just means one extra idle poll.
func (e *Engine) commonSendAlive() bool {
	select {
	case <-e.ctx.Done():
		return false
	default:
		return true
	}
}

// Nickname returns the engine's current nickname.
func (e *Engine) Nickname() string {
	e.nicknameMu.RLock()
	defer e.nicknameMu.RUnlock()
	return e.nickname
}

// SetNickname replaces the engine's nickname. It rejects a nickname longer
// than maxNicknameLen (64), matching mchatv1_set_nickname's bound on
// MCHAT_LIMIT_MAX_NICKNAME_SIZE; it does not compare against the current
// nickname's length.
func (e *Engine) SetNickname(n string) error {
	e.nicknameMu.Lock()
	defer e.nicknameMu.Unlock()
	if len(n) > maxNicknameLen {
		return mcherr.ErrBufferTooSmall
	}
	e.nickname = n
	return nil
}

// Stealth reports whether stealth mode is currently enabled.
func (e *Engine) Stealth() bool {
	e.stealthMu.RLock()
	defer e.stealthMu.RUnlock()
	return e.stealth
}

// SetStealth enables or disables stealth mode. While enabled, neither
// Common-Send nor Text-Send emits PING or CDSC; TEXT sends are unaffected.
func (e *Engine) SetStealth(v bool) {
	e.stealthMu.Lock()
	e.stealth = v
	e.stealthMu.Unlock()
}

// IsConnected reports whether the engine is currently connected to a text
// channel.
func (e *Engine) IsConnected() bool {
	_, connected := e.channels.Current()
	return connected
}

// CurrentChannel returns the added channel currently connected to, and
// false if not connected.
func (e *Engine) CurrentChannel() (channel.Channel, bool) {
	name, connected := e.channels.Current()
	if !connected {
		return channel.Channel{}, false
	}
	return e.channels.AddedByName(name)
}

// Connect opens the text-plane sockets for the named added channel (or
// #mchat if name is empty) and starts Text-Send and Text-Recv. It fails if
// already connected or if name is not in the added set.
func (e *Engine) Connect(name string) error {
	if name == "" {
		name = channel.DefaultName
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.connected {
		return mcherr.ErrAlreadyConnected
	}

	ch, ok := e.channels.AddedByName(name)
	if !ok {
		return mcherr.ErrChannelNotFound
	}

	sendSock, err := netmc.OpenSender(ch.Address, int(ch.Port))
	if err != nil {
		return fmt.Errorf("engine: open text send socket: %w", err)
	}
	recvSock, err := netmc.OpenReceiver(ch.Address, int(ch.Port))
	if err != nil {
		sendSock.Close()
		return fmt.Errorf("engine: open text recv socket: %w", err)
	}

	e.textSend = newTextSendWorker(sendSock, ch.Name, e.Nickname, e.Stealth, e.metrics, e.log)
	e.textRecv = newTextRecvWorker(recvSock, e.peers, e.metrics, e.log)

	e.textSendTk = e.sup.Add(e.textSend)
	e.textRecvTk = e.sup.Add(e.textRecv)

	e.channels.SetCurrent(ch.Name, true)
	e.connected = true
	return nil
}

// Disconnect stops Text-Send and Text-Recv and clears the current channel.
// It fails if not currently connected.
func (e *Engine) Disconnect() error {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if !e.connected {
		return mcherr.ErrNotConnected
	}

	e.sup.RemoveAndWait(e.textSendTk, 2*time.Second)
	e.sup.RemoveAndWait(e.textRecvTk, 2*time.Second)

	e.channels.SetCurrent("", false)
	e.connected = false
	e.textSend = nil
	e.textRecv = nil
	return nil
}

// Destroy disconnects if necessary and tears down the common-channel
// workers. The Engine must not be used after Destroy returns.
func (e *Engine) Destroy() error {
	e.connMu.Lock()
	wasConnected := e.connected
	e.connMu.Unlock()
	if wasConnected {
		if err := e.Disconnect(); err != nil {
			return err
		}
	}

	e.cancel()
	<-e.supErrors
	return nil
}

// SendMessage hands body to the Text-Send worker for transmission as a
// TEXT frame. It blocks if a prior message handed to SendMessage has not
// yet been flushed to the wire.
func (e *Engine) SendMessage(body []byte) error {
	e.connMu.Lock()
	ts := e.textSend
	connected := e.connected
	e.connMu.Unlock()

	if !connected || ts == nil {
		return mcherr.ErrNotConnected
	}
	if len(body) == 0 {
		return mcherr.ErrMessageEmpty
	}
	if len(body) > maxMessageSize {
		return mcherr.ErrMessageTooLarge
	}
	if !ts.Running() {
		return mcherr.ErrWorkerNotRunning
	}

	return ts.Send(e.ctx, body, e.Nickname())
}

// RecvMessage returns the next buffered TEXT message. It returns
// (nil, nil) if no message is currently available, and a non-nil error if
// not connected or if the Text-Recv worker has died.
func (e *Engine) RecvMessage() (*Message, error) {
	e.connMu.Lock()
	tr := e.textRecv
	connected := e.connected
	e.connMu.Unlock()

	if !connected || tr == nil {
		return nil, mcherr.ErrNotConnected
	}
	if !tr.Running() {
		return nil, mcherr.ErrWorkerNotRunning
	}
	if m, ok := tr.Recv(); ok {
		return &m, nil
	}
	return nil, nil
}

// AddChannel defines a new added channel, or (when address is empty and
// port is zero) adopts one by name from the discovered set.
func (e *Engine) AddChannel(name, address string, port uint16) (channel.Channel, error) {
	ch, err := e.channels.Add(name, address, port)
	if err == channel.ErrExists {
		return ch, mcherr.ErrChannelExists
	}
	return ch, err
}

// DelChannel removes an added channel. #mchat and the current channel
// cannot be removed.
func (e *Engine) DelChannel(name string) error {
	switch err := e.channels.Del(name); err {
	case channel.ErrProtected:
		return mcherr.ErrDefaultChannelProtected
	case channel.ErrInUse:
		return mcherr.ErrChannelInUse
	case channel.ErrNotFound:
		return mcherr.ErrChannelNotFound
	default:
		return err
	}
}

// Channels returns the added channel collection.
func (e *Engine) Channels() []channel.Channel {
	return e.channels.Added()
}

// ChannelCount returns the number of added channels.
func (e *Engine) ChannelCount() int {
	return e.channels.AddedCount()
}

// DiscoveredChannels returns the channel registry's discovered collection.
func (e *Engine) DiscoveredChannels() []channel.Channel {
	return e.channels.Discovered()
}

// PeersAvailable reports whether any peers are currently tracked.
func (e *Engine) PeersAvailable() bool {
	return e.peers.Len() > 0
}

// Peerlist returns a snapshot of the peer table.
func (e *Engine) Peerlist() []peer.Peer {
	return e.peers.Snapshot()
}

// PeerBySource looks up the peer last seen from addr.
func (e *Engine) PeerBySource(addr netip.Addr) (peer.Peer, bool) {
	return e.peers.Query(addr)
}

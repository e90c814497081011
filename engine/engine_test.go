package engine

import (
	"errors"
	"testing"

	"github.com/mreese3/libmchat/channel"
	"github.com/mreese3/libmchat/peer"
	"github.com/mreese3/libmchat/pkg/mcherr"
)

// newTestEngine builds an Engine with no real sockets, for exercising the
// logic that does not require an open network (nickname, stealth, channel
// registry delegation, and the not-connected error paths of
// SendMessage/RecvMessage).
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return &Engine{
		nickname: "NoNick1",
		channels: channel.New(),
		peers:    peer.New(),
	}
}

func TestSetNicknameRejectsOverLimit(t *testing.T) {
	e := newTestEngine(t)
	over := make([]byte, 65)
	for i := range over {
		over[i] = 'a'
	}
	if err := e.SetNickname(string(over)); err == nil {
		t.Fatal("SetNickname() error = nil, want error for a nickname over 64 bytes")
	}
	if e.Nickname() != "NoNick1" {
		t.Errorf("Nickname() = %q, want unchanged", e.Nickname())
	}
}

func TestSetNicknameAcceptsLongerThanCurrent(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetNickname("a-much-longer-nickname-than-NoNick1"); err != nil {
		t.Fatalf("SetNickname() error = %v", err)
	}
	if e.Nickname() != "a-much-longer-nickname-than-NoNick1" {
		t.Errorf("Nickname() = %q, want the longer nickname", e.Nickname())
	}
}

func TestSetNicknameAcceptsShorterOrEqual(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetNickname("a"); err != nil {
		t.Fatalf("SetNickname() error = %v", err)
	}
	if e.Nickname() != "a" {
		t.Errorf("Nickname() = %q, want a", e.Nickname())
	}
}

func TestStealthDefaultsFalse(t *testing.T) {
	e := newTestEngine(t)
	if e.Stealth() {
		t.Errorf("Stealth() = true, want false")
	}
	e.SetStealth(true)
	if !e.Stealth() {
		t.Errorf("Stealth() = false, want true after SetStealth(true)")
	}
}

func TestSendMessageNotConnected(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SendMessage([]byte("hi")); !errors.Is(err, mcherr.ErrNotConnected) {
		t.Errorf("SendMessage() = %v, want ErrNotConnected", err)
	}
}

func TestRecvMessageNotConnected(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.RecvMessage(); !errors.Is(err, mcherr.ErrNotConnected) {
		t.Errorf("RecvMessage() = %v, want ErrNotConnected", err)
	}
}

func TestConnectUnknownChannel(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Connect("#nope"); !errors.Is(err, mcherr.ErrChannelNotFound) {
		t.Errorf("Connect() = %v, want ErrChannelNotFound", err)
	}
}

func TestDisconnectWhenNotConnected(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Disconnect(); !errors.Is(err, mcherr.ErrNotConnected) {
		t.Errorf("Disconnect() = %v, want ErrNotConnected", err)
	}
}

func TestAddDelChannelDelegates(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.AddChannel("#dev", "230.0.0.2", 9010); err != nil {
		t.Fatalf("AddChannel() error = %v", err)
	}
	if e.ChannelCount() != 2 {
		t.Errorf("ChannelCount() = %d, want 2", e.ChannelCount())
	}
	if err := e.DelChannel(channel.DefaultName); err == nil {
		t.Error("DelChannel(#mchat) = nil, want error")
	}
	if err := e.DelChannel("#dev"); err != nil {
		t.Errorf("DelChannel(#dev) error = %v", err)
	}
}

func TestSendMessageSizeBounds(t *testing.T) {
	e := newTestEngine(t)
	e.connected = true
	e.textSend = &textSendWorker{outbound: make(chan outboundText, 1)}
	e.textSend.alive.Store(true)
	e.ctx = nil // SendMessage must reject before touching ctx

	if err := e.SendMessage(nil); !errors.Is(err, mcherr.ErrMessageEmpty) {
		t.Errorf("SendMessage(nil) = %v, want ErrMessageEmpty", err)
	}
	big := make([]byte, maxMessageSize+1)
	if err := e.SendMessage(big); !errors.Is(err, mcherr.ErrMessageTooLarge) {
		t.Errorf("SendMessage(too big) = %v, want ErrMessageTooLarge", err)
	}
}

package engine

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/mreese3/libmchat/peer"
	"github.com/mreese3/libmchat/wire"
)

// fakeSender records every datagram written to it.
type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (f *fakeSender) WriteTo(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeSender) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeReceiver replays a fixed sequence of datagrams, then blocks (as a
// real receive socket would) until closed.
type fakeReceiver struct {
	mu       sync.Mutex
	datagram [][]byte
	idx      int
	closed   chan struct{}
}

func newFakeReceiver(datagrams ...[]byte) *fakeReceiver {
	return &fakeReceiver{datagram: datagrams, closed: make(chan struct{})}
}

func (f *fakeReceiver) ReadFrom(buf []byte) (int, net.Addr, error) {
	f.mu.Lock()
	if f.idx < len(f.datagram) {
		d := f.datagram[f.idx]
		f.idx++
		f.mu.Unlock()
		n := copy(buf, d)
		return n, &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 9009}, nil
	}
	f.mu.Unlock()

	<-f.closed
	return 0, nil, errors.New("use of closed connection")
}

func (f *fakeReceiver) SetReadDeadline(time.Time) error { return nil }

func (f *fakeReceiver) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func TestTextSendWorkerAnnouncesThreePingsOnStart(t *testing.T) {
	snd := &fakeSender{}
	w := newTextSendWorker(snd, "#mchat", func() string { return "sean" }, func() bool { return false }, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Serve(ctx)
		close(done)
	}()

	// Give the announce burst a moment to land, then shut down.
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	sent := snd.Sent()
	if len(sent) < 3 {
		t.Fatalf("len(sent) = %d, want >= 3 announce PINGs", len(sent))
	}
	for i := 0; i < 3; i++ {
		rec, err := wire.Parse(sent[i])
		if err != nil || rec.Kind != wire.KindPing {
			t.Errorf("sent[%d] kind = %v, err = %v, want PING", i, rec.Kind, err)
		}
	}
}

func TestTextSendWorkerPreservesOrder(t *testing.T) {
	snd := &fakeSender{}
	w := newTextSendWorker(snd, "#mchat", func() string { return "sean" }, func() bool { return true }, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Serve(ctx)
		close(done)
	}()

	// Give Serve a moment to reach its main select before relying on the
	// capacity-1 channel to serialize these sends.
	time.Sleep(5 * time.Millisecond)
	if err := w.Send(ctx, []byte("a"), "sean"); err != nil {
		t.Fatalf("Send(a) error = %v", err)
	}
	if err := w.Send(ctx, []byte("b"), "sean"); err != nil {
		t.Fatalf("Send(b) error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	sent := snd.Sent()
	if len(sent) != 2 {
		t.Fatalf("len(sent) = %d, want 2 (stealth suppresses PINGs)", len(sent))
	}
	rec0, _ := wire.Parse(sent[0])
	rec1, _ := wire.Parse(sent[1])
	if !bytes.Equal(rec0.Body, []byte("a")) || !bytes.Equal(rec1.Body, []byte("b")) {
		t.Errorf("bodies = %q, %q, want a, b in order", rec0.Body, rec1.Body)
	}
}

func TestTextSendWorkerStealthSuppressesPings(t *testing.T) {
	snd := &fakeSender{}
	w := newTextSendWorker(snd, "#mchat", func() string { return "sean" }, func() bool { return true }, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Serve(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if len(snd.Sent()) != 0 {
		t.Errorf("stealth worker sent %d datagrams, want 0", len(snd.Sent()))
	}
}

func TestTextSendWorkerExitsOnSocketError(t *testing.T) {
	snd := &fakeSender{err: errors.New("boom")}
	w := newTextSendWorker(snd, "#mchat", func() string { return "sean" }, func() bool { return false }, nil, nil)

	err := w.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve() error = nil, want socket error")
	}
	if w.Running() {
		t.Error("Running() = true after Serve returned")
	}
}

func TestTextRecvWorkerRoutesTextAndPing(t *testing.T) {
	textMsg := wire.Serialize(wire.KindText, wire.State{Nickname: "bob", Connected: true, ChannelName: "#mchat", Body: []byte("hi")})
	pingMsg := wire.Serialize(wire.KindPing, wire.State{Nickname: "carol", Connected: true, ChannelName: "#mchat"})

	recv := newFakeReceiver(textMsg, pingMsg)
	peers := peer.New()
	w := newTextRecvWorker(recv, peers, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Serve(ctx)
		close(done)
	}()

	var msg Message
	var ok bool
	for i := 0; i < 100; i++ {
		if msg, ok = w.Recv(); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !ok {
		t.Fatal("Recv() never produced the TEXT message")
	}
	if msg.Nickname != "bob" || !bytes.Equal(msg.Body, []byte("hi")) {
		t.Errorf("msg = %+v, want nickname bob body hi", msg)
	}

	time.Sleep(10 * time.Millisecond)
	if peers.Len() != 1 {
		t.Errorf("peers.Len() = %d, want 1 (PING from carol, TEXT sender tracked by same address)", peers.Len())
	}

	cancel()
	<-done
}

func TestTextRecvWorkerSlotBlocksUntilDrained(t *testing.T) {
	msg1 := wire.Serialize(wire.KindText, wire.State{Nickname: "a", Connected: true, ChannelName: "#mchat", Body: []byte("1")})
	msg2 := wire.Serialize(wire.KindText, wire.State{Nickname: "a", Connected: true, ChannelName: "#mchat", Body: []byte("2")})

	recv := newFakeReceiver(msg1, msg2)
	w := newTextRecvWorker(recv, peer.New(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Serve(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	first, ok := drainWithRetry(t, w)
	if !ok || !bytes.Equal(first.Body, []byte("1")) {
		t.Fatalf("first message = %+v, ok=%v", first, ok)
	}
	second, ok := drainWithRetry(t, w)
	if !ok || !bytes.Equal(second.Body, []byte("2")) {
		t.Fatalf("second message = %+v, ok=%v", second, ok)
	}
}

func drainWithRetry(t *testing.T, w *textRecvWorker) (Message, bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if m, ok := w.Recv(); ok {
			return m, true
		}
		time.Sleep(time.Millisecond)
	}
	return Message{}, false
}

func TestAddrToNetip(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("192.0.2.1"), Port: 9009}
	got := addrToNetip(addr)
	want := netip.MustParseAddr("192.0.2.1")
	if got != want {
		t.Errorf("addrToNetip() = %v, want %v", got, want)
	}
}

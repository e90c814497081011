// Package netmc constructs the IPv4 UDP multicast sockets the MChat workers
// send and receive on: IP_MULTICAST_LOOP disabled on every socket,
// SO_REUSEADDR enabled on every socket, receivers joined to their group on
// INADDR_ANY.
package netmc

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// listenConfig sets SO_REUSEADDR on every socket netmc opens.
var listenConfig = net.ListenConfig{
	Control: func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		})
		if err != nil {
			return err
		}
		return sockErr
	},
}

// Sender is a socket bound for sending datagrams to one multicast group.
type Sender struct {
	pc   *ipv4.PacketConn
	dest *net.UDPAddr
}

// OpenSender opens an ephemeral UDP socket for sending to group:port, with
// IP_MULTICAST_LOOP disabled so a sender never receives its own datagrams.
func OpenSender(group string, port int) (*Sender, error) {
	conn, err := listenConfig.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("netmc: open sender: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("netmc: disable multicast loopback: %w", err)
	}

	groupIP := net.ParseIP(group)
	if groupIP == nil {
		conn.Close()
		return nil, fmt.Errorf("netmc: invalid group address %q", group)
	}

	return &Sender{pc: pc, dest: &net.UDPAddr{IP: groupIP, Port: port}}, nil
}

// WriteTo sends b to the sender's configured group and port.
func (s *Sender) WriteTo(b []byte) error {
	_, err := s.pc.WriteTo(b, nil, s.dest)
	return err
}

// Close releases the underlying socket.
func (s *Sender) Close() error {
	return s.pc.Close()
}

// Receiver is a socket bound to INADDR_ANY:port and joined to a multicast
// group, ready to receive datagrams sent to that group.
type Receiver struct {
	pc *ipv4.PacketConn
}

// OpenReceiver binds a UDP socket to 0.0.0.0:port and joins it to group.
func OpenReceiver(group string, port int) (*Receiver, error) {
	conn, err := listenConfig.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("netmc: open receiver: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("netmc: disable multicast loopback: %w", err)
	}

	groupIP := net.ParseIP(group)
	if groupIP == nil {
		conn.Close()
		return nil, fmt.Errorf("netmc: invalid group address %q", group)
	}

	if err := pc.JoinGroup(nil, &net.UDPAddr{IP: groupIP}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("netmc: join group %s: %w", group, err)
	}

	return &Receiver{pc: pc}, nil
}

// ReadFrom blocks until a datagram arrives (or the receiver is closed from
// another goroutine, which unblocks it with an error), returning the
// payload and the sender's address.
func (r *Receiver) ReadFrom(buf []byte) (int, net.Addr, error) {
	n, _, addr, err := r.pc.ReadFrom(buf)
	return n, addr, err
}

// SetReadDeadline arranges for a pending or future ReadFrom to return an
// error after t; workers that poll rather than block (the common-channel
// workers) use a short rolling deadline instead of blocking forever.
func (r *Receiver) SetReadDeadline(t time.Time) error {
	return r.pc.SetReadDeadline(t)
}

// Close releases the underlying socket, unblocking any in-progress
// ReadFrom with an error.
func (r *Receiver) Close() error {
	return r.pc.Close()
}

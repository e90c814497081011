package netmc

import "testing"

func TestOpenSenderRejectsInvalidGroup(t *testing.T) {
	if _, err := OpenSender("not-an-ip", 9009); err == nil {
		t.Fatal("OpenSender() error = nil, want error for invalid group")
	}
}

func TestOpenReceiverRejectsInvalidGroup(t *testing.T) {
	if _, err := OpenReceiver("not-an-ip", 0); err == nil {
		t.Fatal("OpenReceiver() error = nil, want error for invalid group")
	}
}

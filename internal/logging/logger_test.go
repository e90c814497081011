package logging

import (
	"io"
	"testing"
)

func TestHandlerReceivesTrimmedMessage(t *testing.T) {
	l := New(io.Discard)

	var got string
	l.AddHandler(LevelWarn, func(level Level, msg string) {
		got = msg
	})

	l.Warnln("socket closed")

	if got != "socket closed" {
		t.Errorf("handler got %q, want %q", got, "socket closed")
	}
}

func TestHandlerOnlyFiresForItsLevel(t *testing.T) {
	l := New(io.Discard)

	var fired bool
	l.AddHandler(LevelFatal, func(level Level, msg string) {
		fired = true
	})

	l.Debugln("noise")

	if fired {
		t.Errorf("fatal handler fired for a debug message")
	}
}

// Package logging implements a small leveled logger, in the shape of the
// reference codebase's logger package: a Logger wrapping the standard
// log.Logger, level constants, and attachable handlers so tests can assert
// on emitted lines instead of scraping stdout.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the severity of a logged line.
type Level int

const (
	LevelDebug Level = iota
	LevelVerbose
	LevelInfo
	LevelWarn
	LevelFatal

	numLevels
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelVerbose:
		return "VERBOSE"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelFatal:
		return "FATAL"
	default:
		return "?"
	}
}

// Handler receives every message logged at exactly the level it was
// registered for; messages at other levels do not reach it.
type Handler func(level Level, msg string)

// Logger is a leveled wrapper around the standard library logger.
type Logger struct {
	mu       sync.Mutex
	std      *log.Logger
	handlers [numLevels][]Handler
}

// New returns a Logger writing to w with a time-prefixed standard logger.
// If the LOGGER_DISCARD environment variable is set, output is discarded,
// which keeps test and benchmark output quiet.
func New(w io.Writer) *Logger {
	if os.Getenv("LOGGER_DISCARD") != "" {
		w = io.Discard
	}
	return &Logger{std: log.New(w, "", log.Ltime)}
}

// Default is the package-level logger workers and the engine log through
// unless given an explicit Logger.
var Default = New(os.Stdout)

// AddHandler registers h to be called for every message logged at exactly
// level.
func (l *Logger) AddHandler(level Level, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[level] = append(l.handlers[level], h)
}

func (l *Logger) log(level Level, s string) {
	s = strings.TrimSpace(s)
	l.mu.Lock()
	l.std.Printf("%s: %s", level, s)
	handlers := l.handlers[level]
	l.mu.Unlock()
	for _, h := range handlers {
		h(level, s)
	}
}

func (l *Logger) Debugf(format string, args ...interface{})   { l.log(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Debugln(args ...interface{})                 { l.log(LevelDebug, fmt.Sprintln(args...)) }
func (l *Logger) Verbosef(format string, args ...interface{}) { l.log(LevelVerbose, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})    { l.log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Infoln(args ...interface{})                  { l.log(LevelInfo, fmt.Sprintln(args...)) }
func (l *Logger) Warnf(format string, args ...interface{})    { l.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnln(args ...interface{})                  { l.log(LevelWarn, fmt.Sprintln(args...)) }

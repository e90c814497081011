// Command mchat is a terminal client for the MChat protocol engine: it
// joins a channel, prints arriving TEXT messages, and sends whatever is
// typed on stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mreese3/libmchat/engine"
	_ "github.com/mreese3/libmchat/internal/automaxprocs"
	"github.com/mreese3/libmchat/internal/config"
	"github.com/mreese3/libmchat/internal/logging"
)

var cli struct {
	Nickname string `help:"Nickname to announce. Random if unset." short:"n"`
	Channel  string `help:"Channel to connect to on startup." short:"c" default:"#mchat"`
	Stealth  bool   `help:"Start in stealth mode (suppress PING/CDSC beacons)." short:"s"`
	Config   string `help:"Path to an INI-style configuration file." default:""`
	Debug    bool   `help:"Echo debug-level log lines to stderr a second time (all levels are logged to stderr regardless)."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("mchat"),
		kong.Description("A terminal client for the MChat LAN chat protocol."),
	)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mchat:", err)
		os.Exit(1)
	}
}

func run() error {
	log := logging.New(os.Stderr)
	if cli.Debug {
		log.AddHandler(logging.LevelDebug, func(_ logging.Level, msg string) {
			fmt.Fprintln(os.Stderr, msg)
		})
	}

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithStealth(cli.Stealth),
		engine.WithMetricsRegisterer(prometheus.DefaultRegisterer),
	}
	if cli.Nickname != "" {
		opts = append(opts, engine.WithNickname(cli.Nickname))
	}
	if cli.Config != "" {
		cfg, err := config.Load(cli.Config)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		opts = append(opts, engine.WithConfig(cfg))
	}

	eng, err := engine.New(opts...)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Destroy()

	if err := eng.Connect(cli.Channel); err != nil {
		return fmt.Errorf("connect %s: %w", cli.Channel, err)
	}
	fmt.Printf("connected to %s as %s\n", cli.Channel, eng.Nickname())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pollInbox(ctx, eng)
	return readStdin(ctx, eng)
}

// pollInbox prints arriving TEXT messages until ctx is cancelled.
func pollInbox(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg, err := eng.RecvMessage()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					fmt.Fprintln(os.Stderr, "mchat: recv:", err)
				}
				return
			}
			if msg != nil {
				fmt.Printf("<%s> %s\n", msg.Nickname, msg.Body)
			}
		}
	}
}

// readStdin sends every non-empty line typed on stdin as a TEXT message until EOF,
// interrupt, or ctx cancellation.
func readStdin(ctx context.Context, eng *engine.Engine) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			if err := eng.SendMessage([]byte(line)); err != nil {
				fmt.Fprintln(os.Stderr, "mchat: send:", err)
			}
		}
	}
}

// Package config implements the reserved configuration-file surface
// described in spec.md §6.3: an INI-style key = value file consulted at
// Engine construction for a nickname and preconfigured channels. The file
// format's full semantics are explicitly out of scope; this loader only
// has to produce a Config, not validate or round-trip every possible INI
// dialect.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ChannelConfig is one preconfigured "channel = name,address,port" line.
type ChannelConfig struct {
	Name    string
	Address string
	Port    uint16
}

// Config is the parsed contents of a configuration file.
type Config struct {
	Nickname string
	Stealth  bool
	Channels []ChannelConfig
}

// Load reads and parses the configuration file at path. A missing file is
// not an error: Load returns a zero Config, since nickname and channels are
// both optional (spec.md §4.7 generates a random nickname and seeds only
// #mchat when none are configured).
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (Config, error) {
	var cfg Config

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, fmt.Errorf("config: line %d: expected key = value", lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "nickname":
			cfg.Nickname = value
		case "stealth":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Config{}, fmt.Errorf("config: line %d: invalid stealth value %q", lineNo, value)
			}
			cfg.Stealth = b
		case "channel":
			ch, err := parseChannel(value)
			if err != nil {
				return Config{}, fmt.Errorf("config: line %d: %w", lineNo, err)
			}
			cfg.Channels = append(cfg.Channels, ch)
		default:
			// Unknown keys are reserved for future use and ignored, matching
			// the parser's tolerant treatment of unknown wire headers.
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: scan: %w", err)
	}
	return cfg, nil
}

func parseChannel(value string) (ChannelConfig, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return ChannelConfig{}, fmt.Errorf("expected name,address,port, got %q", value)
	}
	port, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 16)
	if err != nil {
		return ChannelConfig{}, fmt.Errorf("invalid port in %q: %w", value, err)
	}
	return ChannelConfig{
		Name:    strings.TrimSpace(parts[0]),
		Address: strings.TrimSpace(parts[1]),
		Port:    uint16(port),
	}, nil
}

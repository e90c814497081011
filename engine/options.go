package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mreese3/libmchat/internal/config"
	"github.com/mreese3/libmchat/internal/logging"
)

type options struct {
	nickname          string
	stealth           bool
	channels          []config.ChannelConfig
	logger            *logging.Logger
	metricsRegisterer prometheus.Registerer
}

// Option configures a New Engine.
type Option func(*options)

// WithNickname sets the engine's initial nickname, overriding the default
// random "NoNick<n>" identifier.
func WithNickname(n string) Option {
	return func(o *options) { o.nickname = n }
}

// WithStealth sets the engine's initial stealth mode.
func WithStealth(v bool) Option {
	return func(o *options) { o.stealth = v }
}

// WithChannels preconfigures additional added channels beyond the
// always-present #mchat.
func WithChannels(chs ...config.ChannelConfig) Option {
	return func(o *options) { o.channels = append(o.channels, chs...) }
}

// WithConfig applies every setting present in cfg (as loaded by
// config.Load), letting a caller wire the reserved configuration-file
// surface straight into engine construction.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		if cfg.Nickname != "" {
			o.nickname = cfg.Nickname
		}
		o.stealth = cfg.Stealth
		o.channels = append(o.channels, cfg.Channels...)
	}
}

// WithLogger overrides the engine's logger. Defaults to logging.Default.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetricsRegisterer overrides where the engine's Prometheus collectors
// are registered. Pass nil to disable metrics entirely (useful in tests
// that construct many engines against the default global registry).
func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.metricsRegisterer = r }
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/rdtctl/internal/channel"
	"github.com/danmuck/rdtctl/internal/logging"
	"github.com/danmuck/rdtctl/internal/protocol/session"
	"gopkg.in/yaml.v3"
)

// FileConfig is the rdtctl config file. Durations are Go duration strings.
type FileConfig struct {
	Listen     string            `toml:"listen" yaml:"listen"`
	Peer       string            `toml:"peer" yaml:"peer"`
	Session    SessionSection    `toml:"session" yaml:"session"`
	Impairment ImpairmentSection `toml:"impairment" yaml:"impairment"`
	Log        LogSection        `toml:"log" yaml:"log"`
	Metrics    MetricsSection    `toml:"metrics" yaml:"metrics"`
}

type SessionSection struct {
	AcceptTimeout    string         `toml:"accept_timeout" yaml:"accept_timeout"`
	HandshakeTimeout string         `toml:"handshake_timeout" yaml:"handshake_timeout"`
	AckTimeout       string         `toml:"ack_timeout" yaml:"ack_timeout"`
	ReadTimeout      string         `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout     string         `toml:"write_timeout" yaml:"write_timeout"`
	MaxRetries       int            `toml:"max_retries" yaml:"max_retries"`
	MaxPayload       int            `toml:"max_payload" yaml:"max_payload"`
	ReceiveBuffer    int            `toml:"receive_buffer" yaml:"receive_buffer"`
	Backoff          BackoffSection `toml:"backoff" yaml:"backoff"`
}

type BackoffSection struct {
	InitialDelay string  `toml:"initial_delay" yaml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier" yaml:"multiplier"`
	MaxDelay     string  `toml:"max_delay" yaml:"max_delay"`
	Jitter       bool    `toml:"jitter" yaml:"jitter"`
}

type ImpairmentSection struct {
	DropRate        float64 `toml:"drop_rate" yaml:"drop_rate"`
	CorruptRate     float64 `toml:"corrupt_rate" yaml:"corrupt_rate"`
	DuplicateRate   float64 `toml:"duplicate_rate" yaml:"duplicate_rate"`
	RateBytesPerSec int     `toml:"rate_bytes_per_sec" yaml:"rate_bytes_per_sec"`
	Seed            int64   `toml:"seed" yaml:"seed"`
}

type LogSection struct {
	Level     string `toml:"level" yaml:"level"`
	Timestamp bool   `toml:"timestamp" yaml:"timestamp"`
	NoColor   bool   `toml:"no_color" yaml:"no_color"`
}

type MetricsSection struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Default mirrors session.DefaultConfig and the runtime log profile.
func Default() FileConfig {
	sc := session.DefaultConfig()
	return FileConfig{
		Listen: ":9999",
		Peer:   "127.0.0.1:9999",
		Session: SessionSection{
			AcceptTimeout:    "0s",
			HandshakeTimeout: sc.HandshakeTimeout.String(),
			AckTimeout:       sc.AckTimeout.String(),
			ReadTimeout:      "0s",
			WriteTimeout:     sc.WriteTimeout.String(),
			MaxRetries:       sc.MaxRetries,
			MaxPayload:       sc.MaxPayload,
			ReceiveBuffer:    sc.ReceiveBufferSize,
			Backoff: BackoffSection{
				InitialDelay: sc.Backoff.InitialDelay.String(),
				Multiplier:   sc.Backoff.Multiplier,
				MaxDelay:     sc.Backoff.MaxDelay.String(),
				Jitter:       sc.Backoff.Jitter,
			},
		},
		Log: LogSection{
			Level:     "info",
			Timestamp: true,
		},
	}
}

// Load reads path as TOML or YAML (by extension) over Default and validates
// the result. Unknown keys are rejected.
func Load(path string) (FileConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	switch format := formatOf(path); format {
	case "toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return FileConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return FileConfig{}, fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return FileConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		return FileConfig{}, fmt.Errorf("config load failed (%s): unsupported extension", path)
	}
	if err := cfg.Validate(); err != nil {
		return FileConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

func (c FileConfig) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("listen is required")
	}
	if strings.TrimSpace(c.Peer) == "" {
		return fmt.Errorf("peer is required")
	}
	sc, err := c.SessionConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	if err := c.ChannelImpairment().Validate(); err != nil {
		return err
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok && strings.TrimSpace(c.Log.Level) != "" {
		return fmt.Errorf("log.level %q is not a known level", c.Log.Level)
	}
	return nil
}

// SessionConfig converts the session section, filling unset values from
// session defaults.
func (c FileConfig) SessionConfig() (session.Config, error) {
	s := c.Session
	out := session.Config{
		MaxRetries:        s.MaxRetries,
		MaxPayload:        s.MaxPayload,
		ReceiveBufferSize: s.ReceiveBuffer,
		Backoff: session.BackoffConfig{
			Multiplier: s.Backoff.Multiplier,
			Jitter:     s.Backoff.Jitter,
		},
	}
	fields := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"session.accept_timeout", s.AcceptTimeout, &out.AcceptTimeout},
		{"session.handshake_timeout", s.HandshakeTimeout, &out.HandshakeTimeout},
		{"session.ack_timeout", s.AckTimeout, &out.AckTimeout},
		{"session.read_timeout", s.ReadTimeout, &out.ReadTimeout},
		{"session.write_timeout", s.WriteTimeout, &out.WriteTimeout},
		{"session.backoff.initial_delay", s.Backoff.InitialDelay, &out.Backoff.InitialDelay},
		{"session.backoff.max_delay", s.Backoff.MaxDelay, &out.Backoff.MaxDelay},
	}
	for _, f := range fields {
		d, err := parseDuration(f.raw)
		if err != nil {
			return session.Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = d
	}
	return out.WithDefaults(), nil
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %s must be >= 0", raw)
	}
	return d, nil
}

func (c FileConfig) ChannelImpairment() channel.Impairment {
	return channel.Impairment{
		DropRate:        c.Impairment.DropRate,
		CorruptRate:     c.Impairment.CorruptRate,
		DuplicateRate:   c.Impairment.DuplicateRate,
		RateBytesPerSec: c.Impairment.RateBytesPerSec,
		Seed:            c.Impairment.Seed,
	}
}

// LogConfig resolves the log section onto the runtime profile.
func (c FileConfig) LogConfig() logging.Config {
	cfg := logging.DefaultConfig(logging.ProfileRuntime)
	if level, ok := logging.ParseLevel(c.Log.Level); ok {
		cfg.Level = level
	}
	cfg.Timestamp = c.Log.Timestamp
	cfg.NoColor = c.Log.NoColor
	return cfg
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/rdtctl/internal/protocol/session"
	"github.com/danmuck/rdtctl/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func TestTemplatesLoadToDefaults(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for _, kind := range []string{"toml", "yaml"} {
		path := filepath.Join(dir, "rdtctl."+kind)
		if err := WriteTemplate(path, kind, false); err != nil {
			t.Fatalf("write %s template: %v", kind, err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load %s template: %v", kind, err)
		}
		if cfg.Listen != ":9999" || cfg.Peer != "127.0.0.1:9999" {
			t.Fatalf("%s addresses: %+v", kind, cfg)
		}
		sc, err := cfg.SessionConfig()
		if err != nil {
			t.Fatalf("%s session config: %v", kind, err)
		}
		def := session.DefaultConfig()
		if sc.HandshakeTimeout != def.HandshakeTimeout || sc.AckTimeout != def.AckTimeout {
			t.Fatalf("%s timeouts got=%v/%v", kind, sc.HandshakeTimeout, sc.AckTimeout)
		}
		if sc.MaxRetries != def.MaxRetries || sc.Backoff != def.Backoff {
			t.Fatalf("%s retry policy got=%d %+v", kind, sc.MaxRetries, sc.Backoff)
		}
		if cfg.ChannelImpairment().Enabled() {
			t.Fatalf("%s template should not impair the channel", kind)
		}
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "partial.toml", `
peer = "10.0.0.2:7000"

[session]
ack_timeout = "250ms"
max_retries = 0

[impairment]
drop_rate = 0.25
seed = 42
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9999" {
		t.Fatalf("listen should keep default, got %q", cfg.Listen)
	}
	if cfg.Peer != "10.0.0.2:7000" {
		t.Fatalf("peer got=%q", cfg.Peer)
	}
	sc, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("session config: %v", err)
	}
	if sc.AckTimeout != 250*time.Millisecond {
		t.Fatalf("ack timeout got=%v", sc.AckTimeout)
	}
	if sc.MaxRetries != 0 {
		t.Fatalf("explicit max_retries=0 must be kept, got %d", sc.MaxRetries)
	}
	imp := cfg.ChannelImpairment()
	if imp.DropRate != 0.25 || imp.Seed != 42 {
		t.Fatalf("impairment got=%+v", imp)
	}
}

func TestLoadYAMLLogSection(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "log.yml", "log:\n  level: debug\n  timestamp: false\n  no_color: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	lc := cfg.LogConfig()
	if lc.Level != zerolog.DebugLevel || lc.Timestamp || !lc.NoColor {
		t.Fatalf("log config got=%+v", lc)
	}
}

func TestLoadRejectsInvalidInput(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"unknown toml key", "a.toml", "listen = \":1\"\nbogus = 1\n", "unknown keys"},
		{"unknown yaml key", "a.yaml", "bogus: 1\n", "bogus"},
		{"bad duration", "b.toml", "[session]\nack_timeout = \"soon\"\n", "session.ack_timeout"},
		{"negative retries", "c.toml", "[session]\nmax_retries = -2\n", "max retries"},
		{"payload over cap", "d.yaml", "session:\n  max_payload: 10000\n", "max payload"},
		{"drop rate", "e.toml", "[impairment]\ndrop_rate = 2.0\n", "drop_rate"},
		{"log level", "f.toml", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"extension", "g.json", "{}", "unsupported extension"},
	}
	for _, tc := range cases {
		path := writeFile(t, tc.file, tc.body)
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestWriteTemplateRespectsOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "rdtctl.toml")
	if err := WriteTemplate(path, "toml", false); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteTemplate(path, "toml", false); err == nil {
		t.Fatalf("expected existing file to be kept")
	}
	if err := WriteTemplate(path, "yaml", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "session:") {
		t.Fatalf("expected yaml template, got %q", data)
	}
	if _, err := Template("ini"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

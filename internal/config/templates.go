package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "toml":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `listen = ":9999"
peer = "127.0.0.1:9999"

[session]
accept_timeout = "0s"
handshake_timeout = "1s"
ack_timeout = "500ms"
read_timeout = "0s"
write_timeout = "5s"
max_retries = 5
max_payload = 9999
receive_buffer = 1024

[session.backoff]
initial_delay = "50ms"
multiplier = 2.0
max_delay = "1s"
jitter = true

# Simulated channel damage; all zero means a clean channel.
[impairment]
drop_rate = 0.0
corrupt_rate = 0.0
duplicate_rate = 0.0
rate_bytes_per_sec = 0
seed = 0

[log]
level = "info"
timestamp = true
no_color = false

[metrics]
addr = ""
`

const yamlTemplate = `listen: ":9999"
peer: "127.0.0.1:9999"

session:
  accept_timeout: 0s
  handshake_timeout: 1s
  ack_timeout: 500ms
  read_timeout: 0s
  write_timeout: 5s
  max_retries: 5
  max_payload: 9999
  receive_buffer: 1024
  backoff:
    initial_delay: 50ms
    multiplier: 2.0
    max_delay: 1s
    jitter: true

# Simulated channel damage; all zero means a clean channel.
impairment:
  drop_rate: 0.0
  corrupt_rate: 0.0
  duplicate_rate: 0.0
  rate_bytes_per_sec: 0
  seed: 0

log:
  level: info
  timestamp: true
  no_color: false

metrics:
  addr: ""
`

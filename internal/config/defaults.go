package config

import (
	"fmt"
	"os"

	"github.com/iliagerman/mordecai-sub000/internal/fsutil"
)

// DefaultConfigYAML is the commented configuration written by `mordecai init`.
const DefaultConfigYAML = `# Mordecai configuration
# Every key can be overridden with MORDECAI_<SECTION>_<KEY>, for example
# MORDECAI_STORE_BACKEND=redis.

log:
  level: info        # debug, info, warn, error
  format: auto       # auto, text, json

conversation:
  default_max_iterations: 5
  # How long owners have to instruct their agents before rounds begin.
  instruction_timeout: 5m
  # How long an owner has to answer a need_owner_input request.
  clarification_timeout: 5m
  delivery_timeout: 10s

store:
  backend: sqlite    # sqlite, json, bolt, redis, memory
  path: .mordecai/conversations.db
  redis:
    addr: localhost:6379
    db: 0
    key_prefix: "mordecai:"

reasoner:
  # Invoked once per agent turn; the prompt is written to stdin.
  command: claude -p
  timeout: 5m
  rate_limit_per_minute: 0   # 0 disables limiting
  # agents:
  #   alice:
  #     command: claude -p --model sonnet

delivery:
  mode: log          # log, webhook
  # webhook_url: https://example.com/hooks/mordecai
  address_book: .mordecai/addresses.yaml

server:
  addr: localhost:8080
  cors_origins: ["*"]

metrics:
  enabled: true
  namespace: mordecai
`

// WriteDefault writes DefaultConfigYAML to path. An existing file is kept
// unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}
	if err := fsutil.WriteFileAtomic(path, []byte(DefaultConfigYAML), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

package config

// DefaultConfigYAML contains the default configuration YAML content.
// It is written by `pingup init` so a fresh checkout has a commented
// starting point.
const DefaultConfigYAML = `# PingUp Configuration
#
# Values not specified here use sensible defaults.

server:
  addr: ":8080"

auth:
  # Signs API tokens. Leave empty to generate a fresh secret per start.
  secret: ""
  # Authenticates identity-provider webhooks. Empty disables the
  # webhook endpoint.
  webhook_secret: ""

data:
  # Directory holding the SQLite databases.
  dir: .pingup

log:
  level: info
  # auto picks pretty output on a terminal and text otherwise.
  format: auto

mail:
  # When disabled, notification mail is logged instead of sent.
  enabled: false
  host: localhost
  port: 587
  username: ""
  password: ""
  from: no-reply@pingup.local

workflow:
  poll_interval: 5s
  batch_size: 50
  workers: 8
  max_attempts: 4
  retry_delay: 30s
  # How long a claimed run stays invisible to other workers before it
  # is presumed orphaned and requeued.
  claim_lease: 5m

rate_limit:
  rps: 5
  burst: 10

# Base URL linked from notification mail.
frontend_url: http://localhost:5173
`

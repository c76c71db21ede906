package config

// ExampleYAML is the annotated configuration written by
// `nettest-server init-config`.
const ExampleYAML = `# nettest configuration
log:
  level: info        # debug, info, warn, error
  format: text       # text, json

server:
  tcp_address: ":8080"
  quic_address: ""   # e.g. ":8080" to serve the protocol over QUIC as well
  idle_timeout: 5m
  rate_limit: ""     # per connection, e.g. "100MB" (bytes per second)
  max_connections: 0 # 0 = unlimited
  tls:
    cert: ""         # empty = self-signed certificate for QUIC
    key: ""

health:
  enabled: false
  address: ":9090"
  read_timeout: 10s
  write_timeout: 10s

client:
  count: 5
  interval: 1s
  timeout: 5s
  ping_size: 60       # bytes
  transfer_size: "60" # plain number = MiB
  servers_url: "https://www.speedtest.net/api/js/servers?engine=js"
  strict_verify: false
`

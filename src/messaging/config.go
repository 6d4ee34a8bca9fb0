// Package messaging consumes build system events from a fedora-messaging
// AMQP broker.
package messaging

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigPath is where fedora-messaging looks for its configuration.
const DefaultConfigPath = "/etc/fedora-messaging/config.toml"

// Config is the subset of a fedora-messaging config.toml used to consume.
type Config struct {
	AMQPURL          string              `toml:"amqp_url"`
	TLS              TLS                 `toml:"tls"`
	ClientProperties map[string]string   `toml:"client_properties"`
	Exchanges        map[string]Exchange `toml:"exchanges"`
	Queues           map[string]Queue    `toml:"queues"`
	Bindings         []Binding           `toml:"bindings"`
	QoS              QoS                 `toml:"qos"`
}

type TLS struct {
	CACert   string `toml:"ca_cert"`
	KeyFile  string `toml:"keyfile"`
	CertFile string `toml:"certfile"`
}

type Exchange struct {
	Type       string `toml:"type"`
	Durable    bool   `toml:"durable"`
	AutoDelete bool   `toml:"auto_delete"`
}

type Queue struct {
	Durable    bool                   `toml:"durable"`
	AutoDelete bool                   `toml:"auto_delete"`
	Exclusive  bool                   `toml:"exclusive"`
	Arguments  map[string]interface{} `toml:"arguments"`
}

type Binding struct {
	Queue       string   `toml:"queue"`
	Exchange    string   `toml:"exchange"`
	RoutingKeys []string `toml:"routing_keys"`
}

type QoS struct {
	PrefetchCount int `toml:"prefetch_count"`
}

// LoadConfig reads and validates a fedora-messaging configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading messaging config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a fedora-messaging configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing messaging config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.QoS.PrefetchCount == 0 {
		cfg.QoS.PrefetchCount = 10
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []string
	if c.AMQPURL == "" {
		errs = append(errs, "amqp_url is required")
	}
	if len(c.Bindings) == 0 {
		errs = append(errs, "at least one binding is required")
	}
	for i, b := range c.Bindings {
		if _, ok := c.Queues[b.Queue]; !ok {
			errs = append(errs, fmt.Sprintf("bindings[%d]: queue %q is not declared", i, b.Queue))
		}
		if b.Exchange == "" {
			errs = append(errs, fmt.Sprintf("bindings[%d]: exchange is required", i))
		}
		if len(b.RoutingKeys) == 0 {
			errs = append(errs, fmt.Sprintf("bindings[%d]: routing_keys is empty", i))
		}
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, "tls.certfile and tls.keyfile must be set together")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// TLSConfig builds the client TLS configuration, or nil when none is set.
func (c *Config) TLSConfig() (*tls.Config, error) {
	if c.TLS.CACert == "" && c.TLS.CertFile == "" {
		return nil, nil
	}
	tc := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.TLS.CACert != "" {
		pem, err := os.ReadFile(c.TLS.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading tls.ca_cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls.ca_cert %s: no certificates found", c.TLS.CACert)
		}
		tc.RootCAs = pool
	}
	if c.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

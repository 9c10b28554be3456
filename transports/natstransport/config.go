package natstransport

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
)

// Config describes how to reach a NATS server. Defaults can be loaded via
// envdecode.
type Config struct {
	// URL like "nats://localhost:4222". ENV: NATS_URL
	URL string `env:"NATS_URL,default=nats://127.0.0.1:4222"`
	// Name reported to the server. ENV: NATS_NAME
	Name string `env:"NATS_NAME,default=docstream"`
	// NKeySeed enables nkey authentication when set. ENV: NATS_NKEY_SEED
	NKeySeed string `env:"NATS_NKEY_SEED"`
	// SendTimeout bounds the wait for a stream acknowledgment. ENV: NATS_SEND_TIMEOUT
	SendTimeout time.Duration `env:"NATS_SEND_TIMEOUT,default=5s"`
}

// ConfigFromEnv reads a Config from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("natstransport: config: %w", err)
	}
	return cfg, nil
}

func (c Config) options() ([]nats.Option, error) {
	name := c.Name
	if name == "" {
		name = "docstream"
	}
	opts := []nats.Option{nats.Name(name)}
	if c.NKeySeed != "" {
		opt, err := nkeyOption(c.NKeySeed)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

// nkeyOption authenticates with the key pair derived from seed. The seed is
// only held by the signing callback.
func nkeyOption(seed string) (nats.Option, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, fmt.Errorf("natstransport: nkey seed: %w", err)
	}
	publicKey, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("natstransport: nkey public key: %w", err)
	}
	return nats.Nkey(publicKey, kp.Sign), nil
}

// Connect dials the server described by cfg and returns a transport that
// owns the connection.
func Connect(cfg Config) (*Transport, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("natstransport: connect %s: %w", url, err)
	}
	t := New(nc)
	t.ownsConnection = true
	if cfg.SendTimeout > 0 {
		t.SendTimeout = cfg.SendTimeout
	}
	return t, nil
}

// ConnectFromEnv is Connect with ConfigFromEnv.
func ConnectFromEnv() (*Transport, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return Connect(cfg)
}

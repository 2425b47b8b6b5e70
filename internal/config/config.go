// Package config loads the node's YAML configuration file and exposes
// typed sections for every subsystem.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration document.
type Config struct {
	Network  string         `yaml:"network"` // mainnet, testnet, signet, regtest
	Peer     PeerConfig     `yaml:"peer"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Lightning LightningConfig `yaml:"lightning"`
	Offer    OfferConfig    `yaml:"offer"`
	Sync     SyncConfig     `yaml:"sync"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PeerConfig controls the peer listener and connection targets.
type PeerConfig struct {
	Port              int           `yaml:"port"`
	MinPeers          int           `yaml:"min_peers"`
	MaxPeers          int           `yaml:"max_peers"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	OutboundQueueSize int           `yaml:"outbound_queue_size"`
	DialInterval      time.Duration `yaml:"dial_interval"`
	ConfiguredPeers   []ConfiguredPeer `yaml:"configured_peers"`
}

// ConfiguredPeer is a peer the node should try to keep a connection to.
type ConfiguredPeer struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Downloading bool  `yaml:"downloading"`
	Uploading   bool  `yaml:"uploading"`
}

// AdminConfig controls the admin HTTP façade.
type AdminConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

// DatabaseConfig controls the Postgres connection.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// RedisConfig controls the offer-cache Redis connection.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
}

// KafkaConfig controls the best-effort domain event publisher.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LightningConfig controls the LND gateway client and this node's own
// advertised Lightning endpoint.
type LightningConfig struct {
	LNDHost           string        `yaml:"lnd_host"`
	LNDPort           int           `yaml:"lnd_port"`
	LNDNetwork        string        `yaml:"lnd_network"`
	TLSCertPath       string        `yaml:"tls_cert_path"`
	MacaroonPath      string        `yaml:"macaroon_path"`
	ExternalHost      string        `yaml:"external_host"`
	ExternalPort      int           `yaml:"external_port"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	ResubscribeBackoffMin time.Duration `yaml:"resubscribe_backoff_min"`
	ResubscribeBackoffMax time.Duration `yaml:"resubscribe_backoff_max"`
	FeeLimitMsat      int64         `yaml:"fee_limit_msat"`
}

// OfferConfig controls default pricing and offer retention.
type OfferConfig struct {
	DefaultPriceMsat       int64         `yaml:"default_price_msat"`
	MaxAcceptablePriceMsat int64         `yaml:"max_acceptable_price_msat"`
	InvoiceExpiry          time.Duration `yaml:"invoice_expiry"`
	SentOfferRetention     time.Duration `yaml:"sent_offer_retention"`
	SqueakRetention        time.Duration `yaml:"squeak_retention"`
	RetentionGrace         time.Duration `yaml:"retention_grace"`
}

// SyncConfig controls the timeline sync / share window.
type SyncConfig struct {
	BlockInterval int `yaml:"block_interval"`
}

// RateLimitConfig controls the per-author admission window.
type RateLimitConfig struct {
	N int `yaml:"n"`
	W int `yaml:"w"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
}

// Default returns a configuration usable for local development and as
// the base that Load overlays a file onto.
func Default() *Config {
	return &Config{
		Network: "testnet",
		Peer: PeerConfig{
			Port:              8555,
			MinPeers:          4,
			MaxPeers:          16,
			HandshakeTimeout:  10 * time.Second,
			PingInterval:      2 * time.Minute,
			PingTimeout:       30 * time.Second,
			OutboundQueueSize: 256,
			DialInterval:      30 * time.Second,
		},
		Admin: AdminConfig{Port: 8994},
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, User: "squeaknode", Database: "squeaknode",
			SSLMode: "disable", MaxOpenConns: 20, MaxIdleConns: 5,
			ConnMaxLifetime: time.Hour, MigrationsPath: "internal/store/migrations",
		},
		Redis: RedisConfig{Enabled: false, Addr: "localhost:6379"},
		Kafka: KafkaConfig{Enabled: false, Topic: "squeaknode.events"},
		Lightning: LightningConfig{
			LNDHost: "localhost", LNDPort: 10009, LNDNetwork: "testnet",
			CallTimeout: 30 * time.Second,
			ResubscribeBackoffMin: time.Second, ResubscribeBackoffMax: 2 * time.Minute,
		},
		Offer: OfferConfig{
			DefaultPriceMsat: 1000, MaxAcceptablePriceMsat: 100000,
			InvoiceExpiry: time.Hour, SentOfferRetention: 7 * 24 * time.Hour,
			SqueakRetention: 30 * 24 * time.Hour, RetentionGrace: 10 * time.Minute,
		},
		Sync:      SyncConfig{BlockInterval: 1000},
		RateLimit: RateLimitConfig{N: 200, W: 144},
		Logging:   LoggingConfig{Level: "info", JSONFormat: false},
	}
}

// Load reads and parses a YAML config file, overlaying it onto Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

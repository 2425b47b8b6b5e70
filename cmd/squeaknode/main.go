// Command squeaknode runs one payment-gated content-exchange node: a
// peer listener/dialer, an admin HTTP façade, and the background jobs
// that expire stale offers and broadcast the local timeline — wired
// together the way cmd/order-service/main.go composes one service's
// repositories, application services, and transports before blocking
// on an interrupt signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/squeaknode/node/internal/adminapi"
	"github.com/squeaknode/node/internal/config"
	"github.com/squeaknode/node/internal/connmgr"
	"github.com/squeaknode/node/internal/contentcrypto"
	"github.com/squeaknode/node/internal/controller"
	"github.com/squeaknode/node/internal/eventbus"
	"github.com/squeaknode/node/internal/housekeeping"
	"github.com/squeaknode/node/internal/lightning"
	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/offer"
	"github.com/squeaknode/node/internal/offercache"
	"github.com/squeaknode/node/internal/payment"
	"github.com/squeaknode/node/internal/peer"
	"github.com/squeaknode/node/internal/peerserver"
	"github.com/squeaknode/node/internal/ratelimit"
	"github.com/squeaknode/node/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{Level: cfg.Logging.Level, Service: "squeaknode", JSONFormat: cfg.Logging.JSONFormat})
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("squeaknode exited with error", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.Database.MigrationsPath != "" {
		if err := store.RunMigrations(cfg.Database.MigrationsPath, postgresDSN(cfg.Database)); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	baseStore, err := store.Open(postgresDSN(cfg.Database), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, log)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	var dataStore store.Store = baseStore
	if cfg.Redis.Enabled {
		dataStore = offercache.New(offercache.Config{Addrs: []string{cfg.Redis.Addr}, DB: cfg.Redis.DB}, dataStore, log)
	}
	defer dataStore.Close()

	var bus eventbus.Publisher
	if cfg.Kafka.Enabled {
		kafkaBus := eventbus.New(eventbus.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, log)
		defer kafkaBus.Close()
		bus = kafkaBus
	}

	gateway := buildLightningGateway(cfg, log)

	manager := connmgr.New(log)
	paymentEngine := payment.New(gateway, log)

	ctl := controller.New(
		controller.Config{
			PriceMsat:              cfg.Offer.DefaultPriceMsat,
			MaxAcceptablePriceMsat: cfg.Offer.MaxAcceptablePriceMsat,
			InvoiceExpiry:          cfg.Offer.InvoiceExpiry,
			FeeLimitMsat:           cfg.Lightning.FeeLimitMsat,
			ExternalHost:           cfg.Lightning.ExternalHost,
			ExternalPort:           cfg.Lightning.ExternalPort,
		},
		contentcrypto.New(),
		ratelimit.New(ratelimit.Config{N: cfg.RateLimit.N, W: cfg.RateLimit.W}),
		offer.New(gateway),
		paymentEngine,
		dataStore,
		manager,
		gateway,
		bus,
		log,
	)

	peerSrv := peerserver.New(
		peerserver.Config{
			ListenPort:   cfg.Peer.Port,
			MinPeers:     cfg.Peer.MinPeers,
			MaxPeers:     cfg.Peer.MaxPeers,
			DialInterval: cfg.Peer.DialInterval,
			UserAgent:    "squeaknode",
			ConfiguredPeers: configuredPeers(cfg.Peer.ConfiguredPeers),
			PeerConfig: peer.Config{
				HandshakeTimeout:  cfg.Peer.HandshakeTimeout,
				PingInterval:      cfg.Peer.PingInterval,
				PingTimeout:       cfg.Peer.PingTimeout,
				OutboundQueueSize: cfg.Peer.OutboundQueueSize,
			},
		},
		manager,
		ctl,
		log,
	)

	admin := adminapi.New(adminapi.Config{ListenAddr: fmt.Sprintf(":%d", cfg.Admin.Port), JWTSecret: cfg.Admin.JWTSecret}, ctl, log)

	pool := housekeeping.New(buildJobs(ctl, dataStore, cfg), log)

	var recorder payment.SettlementRecorder = dataStore
	if bus != nil {
		recorder = eventbus.SettlementRecorder{Store: dataStore, Bus: bus}
	}

	errCh := make(chan error, 2)
	go func() {
		if err := peerSrv.Run(ctx); err != nil {
			errCh <- fmt.Errorf("peer server: %w", err)
		}
	}()
	go func() {
		if err := admin.Run(ctx); err != nil {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()
	startSettleIndex, _, err := dataStore.LatestReceivedPaymentIndex(ctx)
	if err != nil {
		return fmt.Errorf("read latest settle index: %w", err)
	}
	go paymentEngine.RunSettlementLoop(ctx, recorder, payment.SettlementLoopConfig{StartSettleIndex: startSettleIndex})
	pool.Start(ctx)

	log.Info("squeaknode is running",
		"peer_port", cfg.Peer.Port,
		"admin_port", cfg.Admin.Port,
		"network", cfg.Network,
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("a server exited early", "error", err)
	}

	pool.Stop()
	return nil
}

func postgresDSN(db config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

func configuredPeers(peers []config.ConfiguredPeer) []peerserver.ConfiguredPeer {
	out := make([]peerserver.ConfiguredPeer, len(peers))
	for i, p := range peers {
		out[i] = peerserver.ConfiguredPeer{Host: p.Host, Port: p.Port, Downloading: p.Downloading, Uploading: p.Uploading}
	}
	return out
}

func buildLightningGateway(cfg *config.Config, log *logger.Logger) lightning.Gateway {
	grpcGateway := lightning.NewGRPCGateway(lightning.GRPCConfig{
		Host:              fmt.Sprintf("%s:%d", cfg.Lightning.LNDHost, cfg.Lightning.LNDPort),
		TLSCertPath:       cfg.Lightning.TLSCertPath,
		MacaroonPath:      cfg.Lightning.MacaroonPath,
		CallTimeout:       cfg.Lightning.CallTimeout,
	})
	return lightning.NewBreakerGateway(grpcGateway, lightning.CircuitBreakerConfig{}, log)
}

func buildJobs(ctl *controller.Controller, st store.Store, cfg *config.Config) []housekeeping.Job {
	return []housekeeping.Job{
		{
			Name:     "expire-sent-offers",
			Interval: time.Hour,
			Run: func(ctx context.Context) error {
				_, err := st.DeleteExpiredSentOffers(ctx, cfg.Offer.SentOfferRetention)
				return err
			},
		},
		{
			Name:     "expire-received-offers",
			Interval: time.Hour,
			Run: func(ctx context.Context) error {
				_, err := st.DeleteExpiredReceivedOffers(ctx)
				return err
			},
		},
		{
			Name:     "sync-timeline",
			Interval: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := ctl.SyncTimeline(ctx)
				return err
			},
		},
		{
			Name:     "share-items",
			Interval: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := ctl.ShareItems(ctx)
				return err
			},
		},
	}
}

package lightning

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/squeaknode/node/internal/apperrors"
)

const maxGRPCMsgSize = 32 * 1024 * 1024

// GRPCGateway implements Gateway against a running LND node, following
// the TLS-cert-plus-macaroon dial pattern common to LND gRPC clients.
type GRPCGateway struct {
	host         string
	tlsCertPath  string
	macaroonPath string
	callTimeout  time.Duration
	limiter      *rate.Limiter
}

// GRPCConfig configures a GRPCGateway.
type GRPCConfig struct {
	Host         string
	TLSCertPath  string
	MacaroonPath string
	CallTimeout  time.Duration
	// MaxCallsPerSecond caps the rate of unary RPCs this gateway issues
	// against LND, independent of LND's own rate limiting — protects a
	// misbehaving housekeeping loop or peer flood from hammering the
	// node's own Lightning backend. Does not gate SubscribeInvoices,
	// which opens one long-lived stream rather than repeated calls.
	MaxCallsPerSecond float64
	BurstCalls        int
}

// NewGRPCGateway constructs a GRPCGateway. It does not dial eagerly —
// each call opens its own short-lived connection, matching the
// reference client this node follows.
func NewGRPCGateway(cfg GRPCConfig) *GRPCGateway {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callsPerSecond := cfg.MaxCallsPerSecond
	if callsPerSecond <= 0 {
		callsPerSecond = 20
	}
	burst := cfg.BurstCalls
	if burst <= 0 {
		burst = 10
	}
	return &GRPCGateway{
		host:         cfg.Host,
		tlsCertPath:  cfg.TLSCertPath,
		macaroonPath: cfg.MacaroonPath,
		callTimeout:  timeout,
		limiter:      rate.NewLimiter(rate.Limit(callsPerSecond), burst),
	}
}

// throttle blocks until the per-gateway call rate allows one more RPC,
// or ctx is canceled first.
func (g *GRPCGateway) throttle(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return apperrors.Wrap(apperrors.LightningUnavailable, "rate limit wait", err)
	}
	return nil
}

type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

func (m macaroonCredential) RequireTransportSecurity() bool { return true }

func (g *GRPCGateway) dial(ctx context.Context) (*grpc.ClientConn, error) {
	var tlsConfig *tls.Config
	if g.tlsCertPath != "" {
		certBytes, err := os.ReadFile(g.tlsCertPath)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.LightningUnavailable, "read lnd tls cert", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(certBytes) {
			return nil, apperrors.New(apperrors.LightningUnavailable, "failed to parse lnd tls cert")
		}
		tlsConfig = &tls.Config{RootCAs: pool}
	}

	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxGRPCMsgSize)),
	}
	if tlsConfig != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	}

	if g.macaroonPath != "" {
		macBytes, err := os.ReadFile(g.macaroonPath)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.LightningUnavailable, "read lnd macaroon", err)
		}
		opts = append(opts, grpc.WithPerRPCCredentials(macaroonCredential{hex.EncodeToString(macBytes)}))
	}

	conn, err := grpc.DialContext(ctx, g.host, opts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.LightningUnavailable, "dial lnd", err)
	}
	return conn, nil
}

func (g *GRPCGateway) callCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, g.callTimeout)
}

func (g *GRPCGateway) GetInfo(ctx context.Context) (*NodeInfo, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}

	conn, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	callCtx, cancel := g.callCtx(ctx)
	defer cancel()

	resp, err := lnrpc.NewLightningClient(conn).GetInfo(callCtx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.LightningUnavailable, "lnd GetInfo", err)
	}

	return &NodeInfo{
		IdentityPubkey: resp.IdentityPubkey,
		Alias:          resp.Alias,
		BlockHeight:    resp.BlockHeight,
		SyncedToChain:  resp.SyncedToChain,
	}, nil
}

func (g *GRPCGateway) DecodePayReq(ctx context.Context, payReq string) (*DecodedInvoice, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}

	conn, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	callCtx, cancel := g.callCtx(ctx)
	defer cancel()

	resp, err := lnrpc.NewLightningClient(conn).DecodePayReq(callCtx, &lnrpc.PayReqString{PayReq: payReq})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.LightningUnavailable, "lnd DecodePayReq", err)
	}

	hashBytes, err := hex.DecodeString(resp.PaymentHash)
	if err != nil || len(hashBytes) != 32 {
		return nil, apperrors.New(apperrors.PeerProtocolViolation, "decoded invoice has malformed payment hash")
	}
	var hash [32]byte
	copy(hash[:], hashBytes)

	destBytes, err := hex.DecodeString(resp.Destination)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.PeerProtocolViolation, "decoded invoice has malformed destination", err)
	}

	return &DecodedInvoice{
		PaymentHash: hash,
		Destination: destBytes,
		NumMsat:     resp.NumMsat,
		Description: resp.Description,
		Expiry:      time.Duration(resp.Expiry) * time.Second,
		Timestamp:   time.Unix(resp.Timestamp, 0),
	}, nil
}

func (g *GRPCGateway) AddHoldInvoice(ctx context.Context, req HoldInvoiceRequest) (*HoldInvoice, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}

	conn, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	callCtx, cancel := g.callCtx(ctx)
	defer cancel()

	expirySeconds := int64(req.Expiry.Seconds())
	if expirySeconds <= 0 {
		expirySeconds = 3600
	}

	resp, err := invoicesrpc.NewInvoicesClient(conn).AddHoldInvoice(callCtx, &invoicesrpc.AddHoldInvoiceRequest{
		Hash:    req.PaymentHash[:],
		Value:   req.ValueMsat / 1000,
		Memo:    req.Memo,
		Expiry:  expirySeconds,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.LightningUnavailable, "lnd AddHoldInvoice", err)
	}

	return &HoldInvoice{PaymentRequest: resp.PaymentRequest, AddIndex: resp.AddIndex}, nil
}

func (g *GRPCGateway) SettleInvoice(ctx context.Context, preimage [32]byte) error {
	if err := g.throttle(ctx); err != nil {
		return err
	}

	conn, err := g.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	callCtx, cancel := g.callCtx(ctx)
	defer cancel()

	_, err = invoicesrpc.NewInvoicesClient(conn).SettleInvoice(callCtx, &invoicesrpc.SettleInvoiceMsg{
		Preimage: preimage[:],
	})
	if err != nil {
		return apperrors.Wrap(apperrors.LightningUnavailable, "lnd SettleInvoice", err)
	}
	return nil
}

func (g *GRPCGateway) CancelInvoice(ctx context.Context, paymentHash [32]byte) error {
	if err := g.throttle(ctx); err != nil {
		return err
	}

	conn, err := g.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	callCtx, cancel := g.callCtx(ctx)
	defer cancel()

	_, err = invoicesrpc.NewInvoicesClient(conn).CancelInvoice(callCtx, &invoicesrpc.CancelInvoiceMsg{
		PaymentHash: paymentHash[:],
	})
	if err != nil {
		return apperrors.Wrap(apperrors.LightningUnavailable, "lnd CancelInvoice", err)
	}
	return nil
}

func (g *GRPCGateway) SubscribeInvoices(ctx context.Context, settleIndex uint64) (<-chan InvoiceUpdate, <-chan error) {
	updates := make(chan InvoiceUpdate)
	errs := make(chan error, 1)

	go func() {
		defer close(updates)
		defer close(errs)

		conn, err := g.dial(ctx)
		if err != nil {
			errs <- err
			return
		}
		defer conn.Close()

		stream, err := lnrpc.NewLightningClient(conn).SubscribeInvoices(ctx, &lnrpc.InvoiceSubscription{
			SettleIndex: settleIndex,
		})
		if err != nil {
			errs <- apperrors.Wrap(apperrors.LightningUnavailable, "lnd SubscribeInvoices", err)
			return
		}

		for {
			inv, err := stream.Recv()
			if err != nil {
				if err != io.EOF {
					errs <- apperrors.Wrap(apperrors.LightningUnavailable, "invoice subscription stream", err)
				}
				return
			}

			var hash [32]byte
			copy(hash[:], inv.RHash)

			update := InvoiceUpdate{
				PaymentHash: hash,
				SettleIndex: inv.SettleIndex,
				AmtPaidMsat: inv.AmtPaidMsat,
			}
			switch inv.State {
			case lnrpc.Invoice_OPEN:
				update.State = InvoiceStateOpen
			case lnrpc.Invoice_ACCEPTED:
				update.State = InvoiceStateAccepted
			case lnrpc.Invoice_SETTLED:
				update.State = InvoiceStateSettled
			case lnrpc.Invoice_CANCELED:
				update.State = InvoiceStateCanceled
			}

			select {
			case updates <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, errs
}

func (g *GRPCGateway) SendPaymentSync(ctx context.Context, payReq string, feeLimitMsat int64) (*PaymentResult, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}

	conn, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	callCtx, cancel := g.callCtx(ctx)
	defer cancel()

	req := &lnrpc.SendRequest{PaymentRequest: payReq}
	if feeLimitMsat > 0 {
		req.FeeLimit = &lnrpc.FeeLimit{Limit: &lnrpc.FeeLimit_FixedMsat{FixedMsat: feeLimitMsat}}
	}

	resp, err := lnrpc.NewLightningClient(conn).SendPaymentSync(callCtx, req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.LightningUnavailable, "lnd SendPaymentSync", err)
	}
	if resp.PaymentError != "" {
		return &PaymentResult{Failed: true, FailureReason: resp.PaymentError}, nil
	}

	var hash, preimage [32]byte
	copy(hash[:], resp.PaymentHash)
	copy(preimage[:], resp.PaymentPreimage)

	var feeMsat int64
	if resp.PaymentRoute != nil {
		feeMsat = resp.PaymentRoute.TotalFeesMsat
	}

	return &PaymentResult{
		PaymentHash:     hash,
		PaymentPreimage: preimage,
		FeeMsat:         feeMsat,
	}, nil
}

var _ Gateway = (*GRPCGateway)(nil)

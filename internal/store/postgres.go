package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/models"
)

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// Open connects to dsn and returns a ready PostgresStore. It does not
// run migrations — call RunMigrations separately at startup.
func Open(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration, log *logger.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreIntegrity, "connect to postgres", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return &PostgresStore{db: db, log: log.Named("store")}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func wrapStoreErr(err error, action string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return apperrors.Wrap(apperrors.StoreIntegrity, action+": duplicate row", err)
	}
	return apperrors.Wrap(apperrors.StoreIntegrity, action, err)
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505). Checked by error string rather than importing the
// pq.Error type directly, since this node has no other dependency on
// lib/pq's error representation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key value violates unique constraint")
}

// SaveItem inserts item, or no-ops if hash already exists. If a
// decryption key is present on the incoming record, it is installed
// (but never overwritten once set) in the same statement.
func (s *PostgresStore) SaveItem(ctx context.Context, item *models.ContentItem) error {
	query := `
		INSERT INTO item (
			hash, author_address, reply_hash, block_height, block_time,
			block_header, ciphertext, decryption_key, created_at, liked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hash) DO UPDATE
			SET decryption_key = COALESCE(item.decryption_key, EXCLUDED.decryption_key)
	`
	var decryptionKey []byte
	if item.HasKey() {
		decryptionKey = item.DecryptionKey
	}
	_, err := s.db.ExecContext(ctx, query,
		item.Hash[:], item.AuthorAddress, item.ReplyHash[:], item.BlockHeight, item.BlockTime,
		item.BlockHeader, item.Ciphertext, decryptionKey, item.CreatedAt, item.LikedAt,
	)
	if err != nil {
		return wrapStoreErr(err, "save item")
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, hash [32]byte) (*models.ContentItem, bool, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row, `
		SELECT hash, author_address, reply_hash, block_height, block_time,
			block_header, ciphertext, decryption_key, created_at, liked_at
		FROM item WHERE hash = $1
	`, hash[:])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapStoreErr(err, "get item")
	}
	return row.toModel(), true, nil
}

func (s *PostgresStore) InstallKey(ctx context.Context, hash [32]byte, key []byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE item SET decryption_key = $1 WHERE hash = $2 AND decryption_key IS NULL
	`, key, hash[:])
	if err != nil {
		return wrapStoreErr(err, "install key")
	}
	return nil
}

func (s *PostgresStore) LookupItems(ctx context.Context, addresses []string, minBlockHeight, maxBlockHeight int64) ([][32]byte, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	var hashes [][]byte
	err := s.db.SelectContext(ctx, &hashes, `
		SELECT hash FROM item
		WHERE author_address = ANY($1::text[]) AND block_height BETWEEN $2 AND $3
	`, pqStringArray(addresses), minBlockHeight, maxBlockHeight)
	if err != nil {
		return nil, wrapStoreErr(err, "lookup items")
	}
	out := make([][32]byte, 0, len(hashes))
	for _, h := range hashes {
		var arr [32]byte
		copy(arr[:], h)
		out = append(out, arr)
	}
	return out, nil
}

func (s *PostgresStore) ItemBlockHeightsForAuthor(ctx context.Context, authorAddress string) ([]int64, error) {
	var heights []int64
	err := s.db.SelectContext(ctx, &heights, `
		SELECT block_height FROM item WHERE author_address = $1
	`, authorAddress)
	if err != nil {
		return nil, wrapStoreErr(err, "item block heights for author")
	}
	return heights, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, profile *models.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile (name, address, private_key, sharing, following, image)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE
			SET name = EXCLUDED.name, sharing = EXCLUDED.sharing,
				following = EXCLUDED.following, image = EXCLUDED.image
	`, profile.Name, profile.Address, profile.PrivateKey, profile.Sharing, profile.Following, profile.Image)
	if err != nil {
		return wrapStoreErr(err, "save profile")
	}
	return nil
}

func (s *PostgresStore) GetProfileByAddress(ctx context.Context, address string) (*models.Profile, bool, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT profile_id, name, address, private_key, sharing, following, image
		FROM profile WHERE address = $1
	`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapStoreErr(err, "get profile")
	}
	return row.toModel(), true, nil
}

func (s *PostgresStore) ListSharingProfiles(ctx context.Context) ([]*models.Profile, error) {
	return s.listProfiles(ctx, "sharing")
}

func (s *PostgresStore) ListFollowedProfiles(ctx context.Context) ([]*models.Profile, error) {
	return s.listProfiles(ctx, "following")
}

func (s *PostgresStore) listProfiles(ctx context.Context, flagColumn string) ([]*models.Profile, error) {
	var rows []profileRow
	query := fmt.Sprintf(`
		SELECT profile_id, name, address, private_key, sharing, following, image
		FROM profile WHERE %s = true
	`, flagColumn)
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, wrapStoreErr(err, "list profiles")
	}
	out := make([]*models.Profile, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *PostgresStore) SavePeer(ctx context.Context, peer *models.Peer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peer (name, host, port, uploading, downloading)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (host, port) DO UPDATE
			SET name = EXCLUDED.name, uploading = EXCLUDED.uploading, downloading = EXCLUDED.downloading
	`, peer.Name, peer.Host, peer.Port, peer.Uploading, peer.Downloading)
	if err != nil {
		return wrapStoreErr(err, "save peer")
	}
	return nil
}

func (s *PostgresStore) ListPeers(ctx context.Context) ([]*models.Peer, error) {
	var rows []peerRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT peer_id, name, host, port, uploading, downloading FROM peer
	`); err != nil {
		return nil, wrapStoreErr(err, "list peers")
	}
	out := make([]*models.Peer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *PostgresStore) ListDownloadingPeers(ctx context.Context) ([]*models.Peer, error) {
	var rows []peerRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT peer_id, name, host, port, uploading, downloading FROM peer WHERE downloading = true
	`); err != nil {
		return nil, wrapStoreErr(err, "list downloading peers")
	}
	out := make([]*models.Peer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *PostgresStore) GetCachedSentOffer(ctx context.Context, itemHash [32]byte, clientHost string, clientPort int) (*models.SentOffer, bool, error) {
	var row sentOfferRow
	err := s.db.GetContext(ctx, &row, `
		SELECT sent_offer_id, item_hash, payment_hash, secret_key, nonce, price_msat,
			payment_request, invoice_timestamp, invoice_expiry_seconds, client_host, client_port, paid
		FROM sent_offer
		WHERE item_hash = $1 AND client_host = $2 AND client_port = $3
		ORDER BY invoice_timestamp DESC LIMIT 1
	`, itemHash[:], clientHost, clientPort)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapStoreErr(err, "get cached sent offer")
	}
	offer := row.toModel()
	if offer.Expired(time.Now()) {
		return nil, false, nil
	}
	return offer, true, nil
}

func (s *PostgresStore) SaveSentOffer(ctx context.Context, offer *models.SentOffer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sent_offer (
			item_hash, payment_hash, secret_key, nonce, price_msat, payment_request,
			invoice_timestamp, invoice_expiry_seconds, client_host, client_port, paid
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (payment_hash) DO NOTHING
	`, offer.ItemHash[:], offer.PaymentHash[:], offer.SecretKey[:], offer.Nonce[:], offer.PriceMsat,
		offer.PaymentRequest, offer.InvoiceTimestamp, int64(offer.InvoiceExpiry.Seconds()),
		offer.ClientHost, offer.ClientPort, offer.Paid)
	if err != nil {
		return wrapStoreErr(err, "save sent offer")
	}
	return nil
}

func (s *PostgresStore) MarkSentOfferPaid(ctx context.Context, paymentHash [32]byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sent_offer SET paid = true WHERE payment_hash = $1
	`, paymentHash[:])
	if err != nil {
		return wrapStoreErr(err, "mark sent offer paid")
	}
	return nil
}

// SaveReceivedOffer inserts offer and, on a fresh insert, writes the
// assigned surrogate key back into offer.ReceivedOfferID — pay_offer
// addresses received offers by this id, so callers need it without a
// separate lookup. A duplicate payment_hash leaves the stored row
// unchanged and writes that existing row's id into ReceivedOfferID.
func (s *PostgresStore) SaveReceivedOffer(ctx context.Context, offer *models.ReceivedOffer) error {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO received_offer (
			item_hash, payment_hash, nonce, price_msat, payment_request, invoice_timestamp,
			invoice_expiry_seconds, destination, lightning_host, lightning_port,
			peer_host, peer_port, payment_point, paid
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (payment_hash) DO UPDATE SET payment_hash = received_offer.payment_hash
		RETURNING received_offer_id
	`, offer.ItemHash[:], offer.PaymentHash[:], offer.Nonce[:], offer.PriceMsat, offer.PaymentRequest,
		offer.InvoiceTimestamp, int64(offer.InvoiceExpiry.Seconds()), offer.Destination,
		offer.LightningHost, offer.LightningPort, offer.PeerHost, offer.PeerPort,
		offer.PaymentPoint, offer.Paid)
	if err != nil {
		return wrapStoreErr(err, "save received offer")
	}
	offer.ReceivedOfferID = id
	return nil
}

func (s *PostgresStore) MarkReceivedOfferPaid(ctx context.Context, paymentHash [32]byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE received_offer SET paid = true WHERE payment_hash = $1
	`, paymentHash[:])
	if err != nil {
		return wrapStoreErr(err, "mark received offer paid")
	}
	return nil
}

func (s *PostgresStore) GetReceivedOffer(ctx context.Context, id int64) (*models.ReceivedOffer, bool, error) {
	var row receivedOfferRow
	err := s.db.GetContext(ctx, &row, `
		SELECT received_offer_id, item_hash, payment_hash, nonce, price_msat, payment_request,
			invoice_timestamp, invoice_expiry_seconds, destination, lightning_host, lightning_port,
			peer_host, peer_port, payment_point, paid
		FROM received_offer WHERE received_offer_id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapStoreErr(err, "get received offer")
	}
	return row.toModel(), true, nil
}

func (s *PostgresStore) DeleteExpiredSentOffers(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sent_offer
		WHERE invoice_timestamp + (invoice_expiry_seconds || ' seconds')::interval + $1::interval < now()
	`, fmt.Sprintf("%d seconds", int64(retention.Seconds())))
	if err != nil {
		return 0, wrapStoreErr(err, "delete expired sent offers")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *PostgresStore) DeleteExpiredReceivedOffers(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM received_offer
		WHERE invoice_timestamp + (invoice_expiry_seconds || ' seconds')::interval < now()
	`)
	if err != nil {
		return 0, wrapStoreErr(err, "delete expired received offers")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *PostgresStore) SaveSentPayment(ctx context.Context, payment *models.SentPayment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sent_payment (
			peer_host, peer_port, item_hash, payment_hash, secret_key, price_msat,
			node_pubkey, valid, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, payment.PeerHost, payment.PeerPort, payment.ItemHash[:], payment.PaymentHash[:],
		payment.SecretKey[:], payment.PriceMsat, payment.NodePubkey, payment.Valid, payment.CreatedAt)
	if err != nil {
		return wrapStoreErr(err, "save sent payment")
	}
	return nil
}

// RecordReceivedPayment atomically marks the matching sent offer paid
// and inserts the ReceivedPayment row, in one transaction — a crash
// between the two must never leave a paid offer without a payment
// record or vice versa.
func (s *PostgresStore) RecordReceivedPayment(ctx context.Context, payment *models.ReceivedPayment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapStoreErr(err, "begin record received payment")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO received_payment (
			item_hash, payment_hash, price_msat, settle_index, client_host, client_port, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, payment.ItemHash[:], payment.PaymentHash[:], payment.PriceMsat, payment.SettleIndex,
		payment.ClientHost, payment.ClientPort, payment.CreatedAt)
	if err != nil {
		return wrapStoreErr(err, "insert received payment")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sent_offer SET paid = true WHERE payment_hash = $1
	`, payment.PaymentHash[:])
	if err != nil {
		return wrapStoreErr(err, "mark sent offer paid in settlement transaction")
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreErr(err, "commit record received payment")
	}
	return nil
}

func (s *PostgresStore) ItemHashForPaymentHash(ctx context.Context, paymentHash [32]byte) (itemHash [32]byte, clientHost string, clientPort int, found bool, err error) {
	var row struct {
		ItemHash   []byte `db:"item_hash"`
		ClientHost string `db:"client_host"`
		ClientPort int    `db:"client_port"`
	}
	dbErr := s.db.GetContext(ctx, &row, `
		SELECT item_hash, client_host, client_port FROM sent_offer WHERE payment_hash = $1
	`, paymentHash[:])
	if errors.Is(dbErr, sql.ErrNoRows) {
		return itemHash, "", 0, false, nil
	}
	if dbErr != nil {
		return itemHash, "", 0, false, wrapStoreErr(dbErr, "item hash for payment hash")
	}
	copy(itemHash[:], row.ItemHash)
	return itemHash, row.ClientHost, row.ClientPort, true, nil
}

func (s *PostgresStore) LatestReceivedPaymentIndex(ctx context.Context) (uint64, bool, error) {
	var index sql.NullInt64
	err := s.db.GetContext(ctx, &index, `SELECT MAX(settle_index) FROM received_payment`)
	if err != nil {
		return 0, false, wrapStoreErr(err, "latest received payment index")
	}
	if !index.Valid {
		return 0, false, nil
	}
	return uint64(index.Int64), true, nil
}

func pqStringArray(ss []string) interface{} {
	return stringArray(ss)
}

type stringArray []string

// Value implements driver.Valuer, encoding as a Postgres text array
// literal — avoids an additional dependency purely for array binding.
func (a stringArray) Value() (interface{}, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	out := "{"
	for i, s := range a {
		if i > 0 {
			out += ","
		}
		out += `"` + escapeArrayElem(s) + `"`
	}
	out += "}"
	return out, nil
}

func escapeArrayElem(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

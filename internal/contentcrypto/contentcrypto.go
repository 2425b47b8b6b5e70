// Package contentcrypto implements content item validation, hashing,
// and the encrypt/decrypt relationship between a ContentItem's
// ciphertext and its decryption key (which doubles as a Lightning
// payment preimage).
//
// Signing follows web3-wallet-backend/pkg/crypto/keys.go's use of
// github.com/ethereum/go-ethereum/crypto for secp256k1 ECDSA. Content
// encryption is AES-256-GCM, exactly as that file's EncryptData /
// DecryptData helpers do it, with the 32-byte decryption key doubling
// as the AES key.
package contentcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/models"
)

// ParsedHeader is the block header binding extracted during Validate.
type ParsedHeader struct {
	BlockHeight int64
	BlockTime   int64
	Raw         []byte
}

// ContentCrypto signs, hashes, encrypts, and decrypts content items.
type ContentCrypto struct{}

// New constructs a ContentCrypto. It holds no state — every operation
// is a pure function of its arguments.
func New() *ContentCrypto { return &ContentCrypto{} }

// canonicalBytes serializes the fields of item that participate in the
// hash and the signature, in a fixed field order. DecryptionKey is
// deliberately excluded: the hash must be stable whether or not the key
// has been installed yet.
func canonicalBytes(item *models.ContentItem) []byte {
	var buf bytes.Buffer
	buf.WriteString(item.AuthorAddress)
	buf.Write(item.ReplyHash[:])

	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], uint64(item.BlockHeight))
	buf.Write(heightBuf[:])

	var timeBuf [8]byte
	binary.BigEndian.PutUint64(timeBuf[:], uint64(item.BlockTime))
	buf.Write(timeBuf[:])

	buf.Write(item.BlockHeader)
	buf.Write(item.Ciphertext)
	return buf.Bytes()
}

// Hash computes the deterministic 32-byte identifier of an item: a
// double-SHA256 over its canonical serialization, following the squeak
// protocol's item-hash convention.
func (c *ContentCrypto) Hash(item *models.ContentItem) [32]byte {
	first := sha256.Sum256(canonicalBytes(item))
	return sha256.Sum256(first[:])
}

// Validate verifies an item's signature and structural well-formedness,
// returning the parsed block header binding. The signature is an
// ECDSA-over-secp256k1 signature (65 bytes, recoverable) by the
// author's private key over the item's hash; it travels alongside the
// item on the wire rather than as one of its fields (see
// wire.SqueakMessage), so canonicalBytes never has to exclude it.
// An empty signature skips the signature check entirely, and an empty
// authorPubkey skips comparing the recovered signer against anything;
// in both cases only the structural checks apply.
func (c *ContentCrypto) Validate(item *models.ContentItem, signature []byte, authorPubkey []byte) (*ParsedHeader, error) {
	if len(item.AuthorAddress) != 35 {
		return nil, apperrors.New(apperrors.InvalidItem, "author address must be 35 characters")
	}
	if len(item.Ciphertext) == 0 {
		return nil, apperrors.New(apperrors.InvalidItem, "ciphertext must not be empty")
	}
	if item.BlockHeader == nil {
		return nil, apperrors.New(apperrors.InvalidItem, "block header must be present")
	}

	hash := c.Hash(item)
	if len(signature) > 0 {
		recovered, err := ethcrypto.SigToPub(hash[:], signature)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.InvalidItem, "recover signer", err)
		}
		if len(authorPubkey) > 0 && !bytes.Equal(ethcrypto.FromECDSAPub(recovered), authorPubkey) {
			return nil, apperrors.New(apperrors.InvalidItem, "signature does not match author pubkey")
		}
	}

	return &ParsedHeader{
		BlockHeight: item.BlockHeight,
		BlockTime:   item.BlockTime,
		Raw:         item.BlockHeader,
	}, nil
}

// HasKey reports whether item's decryption key is installed.
func (c *ContentCrypto) HasKey(item *models.ContentItem) bool {
	return item.HasKey()
}

// SetKey installs key as item's decryption key, without checking that
// it decrypts — callers that need that guarantee call CheckDecrypted
// afterward.
func (c *ContentCrypto) SetKey(item *models.ContentItem, key [32]byte) {
	item.DecryptionKey = append([]byte(nil), key[:]...)
}

// ClearKey removes item's installed decryption key.
func (c *ContentCrypto) ClearKey(item *models.ContentItem) {
	item.DecryptionKey = nil
}

// CheckDecrypted verifies that item's installed key actually decrypts
// its ciphertext into a plaintext whose AES-GCM tag validates. It does
// not re-derive item.Hash from the plaintext — the hash already commits
// to the ciphertext, not the plaintext, per canonicalBytes.
func (c *ContentCrypto) CheckDecrypted(item *models.ContentItem) error {
	if !item.HasKey() {
		return apperrors.New(apperrors.InvalidKey, "no decryption key installed")
	}
	if _, err := decrypt(item.Ciphertext, item.DecryptionKey); err != nil {
		return apperrors.Wrap(apperrors.InvalidKey, "installed key does not decrypt item", err)
	}
	return nil
}

// MakeItem signs and encrypts contentStr into a fresh ContentItem
// authored by profile, with the decryption key present. replyHash may
// be the zero hash for a top-level item.
func (c *ContentCrypto) MakeItem(profile *models.Profile, contentStr string, replyHash [32]byte, blockHeight, blockTime int64, blockHeader []byte) (*models.ContentItem, []byte, error) {
	if !profile.IsSigning() {
		return nil, nil, apperrors.New(apperrors.InvalidItem, "profile has no private key to author with")
	}

	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, nil, fmt.Errorf("generate decryption key: %w", err)
	}

	ciphertext, err := encrypt([]byte(contentStr), key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt content: %w", err)
	}

	item := &models.ContentItem{
		AuthorAddress: profile.Address,
		ReplyHash:     replyHash,
		BlockHeight:   blockHeight,
		BlockTime:     blockTime,
		BlockHeader:   blockHeader,
		Ciphertext:    ciphertext,
		DecryptionKey: key[:],
	}
	item.Hash = c.Hash(item)

	privKey, err := ethcrypto.ToECDSA(profile.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("parse signing key: %w", err)
	}
	sig, err := ethcrypto.Sign(item.Hash[:], privKey)
	if err != nil {
		return nil, nil, fmt.Errorf("sign item: %w", err)
	}

	return item, sig, nil
}

// Decrypt returns the plaintext content of item using its installed
// decryption key.
func (c *ContentCrypto) Decrypt(item *models.ContentItem) ([]byte, error) {
	if !item.HasKey() {
		return nil, apperrors.New(apperrors.InvalidKey, "no decryption key installed")
	}
	return decrypt(item.Ciphertext, item.DecryptionKey)
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("create nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

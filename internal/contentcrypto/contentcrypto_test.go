package contentcrypto

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/models"
)

func signingProfile(t *testing.T) *models.Profile {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return &models.Profile{
		Name:       "alice",
		Address:    "11111111111111111111111111111111a",
		PrivateKey: ethcrypto.FromECDSA(key),
		Sharing:    true,
	}
}

func TestMakeItem_RoundTripsAndDecrypts(t *testing.T) {
	cc := New()
	profile := signingProfile(t)

	item, sig, err := cc.MakeItem(profile, "hello network", [32]byte{}, 100, 1710000000, []byte{0x01})
	require.NoError(t, err)
	require.NotEmpty(t, sig)
	assert.True(t, item.HasKey())

	assert.NoError(t, cc.CheckDecrypted(item))

	plaintext, err := cc.Decrypt(item)
	require.NoError(t, err)
	assert.Equal(t, "hello network", string(plaintext))
}

func TestHash_StableAcrossKeyInstallation(t *testing.T) {
	cc := New()
	profile := signingProfile(t)

	item, _, err := cc.MakeItem(profile, "content", [32]byte{}, 1, 1, nil)
	require.NoError(t, err)

	hashWithKey := cc.Hash(item)
	key := item.DecryptionKey
	cc.ClearKey(item)
	hashWithoutKey := cc.Hash(item)

	assert.Equal(t, hashWithKey, hashWithoutKey)

	var k [32]byte
	copy(k[:], key)
	cc.SetKey(item, k)
	assert.NoError(t, cc.CheckDecrypted(item))
}

func TestCheckDecrypted_FailsOnWrongKey(t *testing.T) {
	cc := New()
	profile := signingProfile(t)

	item, _, err := cc.MakeItem(profile, "content", [32]byte{}, 1, 1, nil)
	require.NoError(t, err)

	var wrongKey [32]byte
	wrongKey[0] = 0xFF
	cc.SetKey(item, wrongKey)

	err = cc.CheckDecrypted(item)
	require.Error(t, err)
	assert.True(t, apperrors.OfKind(err, apperrors.InvalidKey))
}

func TestValidate_RejectsMalformedItem(t *testing.T) {
	cc := New()
	item := &models.ContentItem{
		AuthorAddress: "too-short",
		Ciphertext:    []byte("x"),
		BlockHeader:   []byte{0x00},
	}
	_, err := cc.Validate(item, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.OfKind(err, apperrors.InvalidItem))
}

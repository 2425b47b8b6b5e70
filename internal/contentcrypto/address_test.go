package contentcrypto

import (
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestAddressFromPubkey_ValidatesAndRoundTrips(t *testing.T) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubkey := ethcrypto.FromECDSAPub(&priv.PublicKey)

	address := AddressFromPubkey(pubkey, "mainnet")
	if !ValidateAddress(address) {
		t.Fatalf("address %q did not validate", address)
	}
	if len(address) < 25 || len(address) > 35 {
		t.Fatalf("address %q has unexpected length %d", address, len(address))
	}
}

func TestAddressFromPubkey_DiffersByNetwork(t *testing.T) {
	pubkey := []byte("a fixed test pubkey, length doesn't matter here")

	mainnet := AddressFromPubkey(pubkey, "mainnet")
	testnet := AddressFromPubkey(pubkey, "testnet")
	if mainnet == testnet {
		t.Fatalf("expected mainnet and testnet addresses to differ, both were %q", mainnet)
	}
}

func TestValidateAddress_RejectsGarbage(t *testing.T) {
	if ValidateAddress("not a valid address") {
		t.Fatal("expected garbage input to be rejected")
	}
	if ValidateAddress("") {
		t.Fatal("expected empty input to be rejected")
	}
}

func TestValidateAddress_RejectsTamperedChecksum(t *testing.T) {
	address := AddressFromPubkey([]byte("another test pubkey"), "mainnet")
	tampered := strings.Replace(address, address[len(address)-1:], "9", 1)
	if tampered == address {
		t.Skip("tamper produced no change, pick a different replacement character")
	}
	if ValidateAddress(tampered) {
		t.Fatalf("expected tampered address %q to fail validation", tampered)
	}
}

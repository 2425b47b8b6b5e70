package contentcrypto

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // ripemd160 is deprecated upstream but still the hash this address scheme is defined over
)

// base58Alphabet excludes 0, O, I, l to avoid visual confusion, same
// alphabet as crypto-wallet/pkg/bitcoin/base58/base58.go.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var (
	base58Chars = []byte(base58Alphabet)
	base58Index [256]int
)

func init() {
	for i := range base58Index {
		base58Index[i] = -1
	}
	for i, c := range base58Chars {
		base58Index[c] = i
	}
}

func base58Encode(input []byte) string {
	leadingZeros := 0
	for leadingZeros < len(input) && input[leadingZeros] == 0 {
		leadingZeros++
	}

	num := new(big.Int).SetBytes(input)
	base := big.NewInt(58)
	mod := new(big.Int)
	var out []byte
	for num.Sign() > 0 {
		num.DivMod(num, base, mod)
		out = append(out, base58Chars[mod.Int64()])
	}
	for i := 0; i < leadingZeros; i++ {
		out = append(out, base58Chars[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func base58Decode(input string) ([]byte, error) {
	leadingOnes := 0
	for leadingOnes < len(input) && input[leadingOnes] == base58Chars[0] {
		leadingOnes++
	}

	num := new(big.Int)
	base := big.NewInt(58)
	for _, c := range input {
		if c > 255 || base58Index[c] == -1 {
			return nil, fmt.Errorf("invalid base58 character %q", c)
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(base58Index[c])))
	}

	decoded := num.Bytes()
	out := make([]byte, leadingOnes+len(decoded))
	copy(out[leadingOnes:], decoded)
	return out, nil
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func base58CheckEncode(payload []byte) string {
	return base58Encode(append(payload, checksum(payload)...))
}

func base58CheckDecode(s string) ([]byte, error) {
	decoded, err := base58Decode(s)
	if err != nil {
		return nil, err
	}
	if len(decoded) < 4 {
		return nil, fmt.Errorf("base58check payload too short")
	}
	payload, sum := decoded[:len(decoded)-4], decoded[len(decoded)-4:]
	want := checksum(payload)
	for i := range want {
		if sum[i] != want[i] {
			return nil, fmt.Errorf("base58check checksum mismatch")
		}
	}
	return payload, nil
}

// addressVersion maps a network name to the version byte prefixed
// onto a pubkey hash before base58check encoding, mirroring Bitcoin's
// per-network address version scheme.
func addressVersion(network string) byte {
	switch network {
	case "mainnet":
		return 0x00
	case "testnet", "signet", "regtest":
		return 0x6F
	default:
		return 0x6F
	}
}

// hash160 is RIPEMD160(SHA256(data)) — the same pubkey-hashing scheme
// crypto-wallet/pkg/bitcoin/script/script.go's Hash160 implements.
func hash160(data []byte) []byte {
	sha := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil)
}

// AddressFromPubkey derives a profile's base58check address (a 25-byte
// version+hash160+checksum payload, which encodes to at most 34
// characters) from its compressed secp256k1 public key, the way a new
// signing Profile's Address would be generated once (addresses are
// otherwise treated as opaque, already-assigned identifiers
// everywhere else in this package).
func AddressFromPubkey(pubkey []byte, network string) string {
	payload := append([]byte{addressVersion(network)}, hash160(pubkey)...)
	return base58CheckEncode(payload)
}

// ValidateAddress reports whether address is a well-formed
// base58check-encoded hash160, independent of which network issued it.
func ValidateAddress(address string) bool {
	payload, err := base58CheckDecode(address)
	if err != nil {
		return false
	}
	return len(payload) == 21
}

package probe

import (
	"encoding/base32"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	onionSuffix    = ".onion"
	onionV3Version = 0x03
)

var (
	onionV3Pattern        = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV3ContentPattern = regexp.MustCompile(`[a-z2-7]{56}\.onion`)
	onionChecksumPrefix   = []byte(".onion checksum")
)

// IsValidOnionV3 reports whether address is a v3 onion address with a
// correct checksum.
func IsValidOnionV3(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, onionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return false
	}
	want := onionChecksum(pubkey, version)
	return checksum[0] == want[0] && checksum[1] == want[1]
}

// onionChecksum is the first two bytes of
// SHA3-256(".onion checksum" || pubkey || version).
func onionChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(onionChecksumPrefix)+len(pubkey)+1)
	data = append(data, onionChecksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return sum[:2]
}

// onionFromPublicKey derives the v3 onion address of an ed25519 public key.
func onionFromPublicKey(pubkey []byte) string {
	data := make([]byte, 0, 35)
	data = append(data, pubkey...)
	data = append(data, onionChecksum(pubkey, onionV3Version)...)
	data = append(data, onionV3Version)
	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + onionSuffix
}

// extractOnions returns the distinct v3-shaped onion addresses in text.
func extractOnions(text string) []string {
	return dedupe(onionV3ContentPattern.FindAllString(strings.ToLower(text), -1))
}

// contentHash returns the hex SHA3-256 digest of body.
func contentHash(body []byte) string {
	sum := sha3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// dedupe removes repeated strings, keeping first occurrences in order.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

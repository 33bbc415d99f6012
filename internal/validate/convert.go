package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ConvertInscriptionID splits an inscription id "<txid>i<index>" into its
// transaction id and index. The trailing index is parsed as an integer, so
// ids with index >= 10 map correctly, and the txid half must be a valid
// 64-hex transaction hash.
func ConvertInscriptionID(id string) (txid string, index uint32, err error) {
	sep := strings.LastIndexByte(id, 'i')
	if sep <= 0 || sep == len(id)-1 {
		return "", 0, fmt.Errorf("inscription id %q: missing i<index> suffix", id)
	}
	txid = id[:sep]
	idx, err := strconv.ParseUint(id[sep+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("inscription id %q: bad index: %w", id, err)
	}
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return "", 0, fmt.Errorf("inscription id %q: bad txid: %w", id, err)
	}
	return txid, uint32(idx), nil
}

// ParseCanonicalUint parses a non-negative integer with no leading zeros
// (except the literal "0").
func ParseCanonicalUint(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ParseBitmapContent extracts N from "<N>.bitmap" content; ok is false when
// the form or the number is not canonical.
func ParseBitmapContent(content string) (int64, bool) {
	trimmed := strings.TrimSpace(content)
	rest, found := strings.CutSuffix(trimmed, ".bitmap")
	if !found || strings.Contains(rest, ".") {
		return 0, false
	}
	return ParseCanonicalUint(rest)
}

// ParseParcelContent extracts (P, N) from "<P>.<N>.bitmap" content.
func ParseParcelContent(content string) (parcel, bitmap int64, ok bool) {
	trimmed := strings.TrimSpace(content)
	rest, found := strings.CutSuffix(trimmed, ".bitmap")
	if !found {
		return 0, 0, false
	}
	parts := strings.Split(rest, ".")
	if len(parts) != 2 {
		return 0, 0, false
	}
	if !isDigits(parts[0]) {
		return 0, 0, false
	}
	p, err := strconv.ParseInt(parts[0], 10, 64)
	n, ok2 := ParseCanonicalUint(parts[1])
	if err != nil || !ok2 {
		return 0, 0, false
	}
	return p, n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// SuffixFunc returns n random base36 characters.
type SuffixFunc func(n int) string

// RandomBase36 draws n characters from the base36 alphabet using crypto/rand.
func RandomBase36(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n)
	limit := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			b.WriteByte(base36Alphabet[time.Now().UnixNano()%int64(len(base36Alphabet))])
			continue
		}
		b.WriteByte(base36Alphabet[idx.Int64()])
	}
	return b.String()
}

// OrderNumber formats ORD-<epoch ms>-<4 base36 chars uppercased>.
func OrderNumber(now time.Time, suffix SuffixFunc) string {
	if suffix == nil {
		suffix = RandomBase36
	}
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.ToUpper(suffix(4)))
}

// TrackingNumber formats TRK-<last 6 digits of epoch ms>-<4 base36 chars uppercased>.
func TrackingNumber(now time.Time, suffix SuffixFunc) string {
	if suffix == nil {
		suffix = RandomBase36
	}
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return fmt.Sprintf("TRK-%s-%s", ms, strings.ToUpper(suffix(4)))
}

// ProductSKU formats <first 3 letters of category>-<6 base36 chars>, all uppercased.
func ProductSKU(category ProductCategory, suffix SuffixFunc) string {
	if suffix == nil {
		suffix = RandomBase36
	}
	prefix := strings.ToUpper(string(category))
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	if prefix == "" {
		prefix = "OTH"
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(suffix(6)))
}

// ReviewID derives the review document id from its author and product, so a second review of
// the same product by the same user collides on create.
func ReviewID(userID, productID string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + productID))
	return "rev_" + hex.EncodeToString(sum[:13])
}

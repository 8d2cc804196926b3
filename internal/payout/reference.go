package payout

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const refAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewReference builds VND{first 8 hex of vendor id}{unix ms}{6 random chars}.
func NewReference(vendorID uuid.UUID, now time.Time) string {
	var b strings.Builder
	b.WriteString("VND")
	b.WriteString(strings.ReplaceAll(vendorID.String(), "-", "")[:8])
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	max := big.NewInt(int64(len(refAlphabet)))
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		b.WriteByte(refAlphabet[n.Int64()])
	}
	return b.String()
}

package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// InvoiceNo builds a receipt number of the form YYYYMMDD-xxxx where the suffix
// is 4 random hex characters. Collisions within a day are possible but rare;
// the sale ledger's unique index is the authority and a collision surfaces as
// a duplicate-invoice error rather than being retried here.
func InvoiceNo(at time.Time) string {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%04x", at.Format("20060102"), at.UnixNano()&0xffff)
	}
	return fmt.Sprintf("%s-%s", at.Format("20060102"), hex.EncodeToString(buf))
}

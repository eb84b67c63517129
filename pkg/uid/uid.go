package uid

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// codeAlphabet omits characters that are easy to misread (0/O, 1/I).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Code returns n uniformly random characters from an unambiguous upper-case
// alphabet. Safe for bank transfer descriptions.
func Code(n int) string {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("uid: crypto/rand failed: " + err.Error())
		}
		b[i] = codeAlphabet[v.Int64()]
	}
	return string(b)
}

// OrderNumber returns a human-facing order number such as ORD20261016K7PQ2MZX.
func OrderNumber(t time.Time) string {
	return "ORD" + t.UTC().Format("20060102") + Code(8)
}

package session

import (
	"crypto/rand"
	"math/big"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateCode returns n uppercase alphanumerics from crypto/rand.
func generateCode(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = codeAlphabet[v.Int64()]
	}
	return string(out)
}

func newRoomName() string {
	return "room-" + generateCode(12)
}

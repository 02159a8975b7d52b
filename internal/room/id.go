package room

import (
	"crypto/rand"
	"math/big"
)

const (
	idCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
	IDLength  = 6

	maxIDAttempts = 32
)

func GenerateID() (string, error) {
	id := make([]byte, IDLength)
	max := big.NewInt(int64(len(idCharset)))
	for i := range id {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		id[i] = idCharset[n.Int64()]
	}
	return string(id), nil
}

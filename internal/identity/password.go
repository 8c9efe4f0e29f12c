package identity

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the production cost for password hashing.
const BcryptCost = 12

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword returns nil if password matches hash.
func verifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

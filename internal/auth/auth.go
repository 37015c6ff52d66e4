// Package auth hashes and verifies the passwords backing LOGIN (spec §6,
// §7's INVALID_CREDENTIALS case).
package auth

import "golang.org/x/crypto/bcrypt"

// Hash returns a bcrypt hash of password suitable for storage in
// database.User.PasswordHash.
func Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}

// Check reports whether password matches the stored bcrypt hash.
func Check(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

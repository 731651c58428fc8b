package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword generates a bcrypt digest of the password. The digest is
// the only form ever persisted or compared; the plain password is never
// logged or echoed.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPasswordHash verifies a password against a stored digest.
// bcrypt's comparison is constant-time over the derived key.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

package identity

import "golang.org/x/crypto/bcrypt"

// hashCost is deliberately above bcrypt.DefaultCost; login is rate-limited so
// the extra latency is acceptable.
const hashCost = 12

// PasswordHasher wraps the slow hash used for credential verification.
type PasswordHasher struct{}

// Hash derives a bcrypt hash from the plaintext password.
func (PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare reports whether the plaintext password matches the stored hash.
func (PasswordHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

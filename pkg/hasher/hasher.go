package hasher

import "golang.org/x/crypto/bcrypt"

// Hasher is the one-way digest capability shared by password and OTP
// storage. Compare never reveals why a mismatch happened.
type Hasher interface {
	Hash(plain string) (string, error)
	Compare(plain, digest string) bool
}

// Bcrypt implements Hasher with the bcrypt KDF.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher; non-positive cost falls back to the
// library default.
func NewBcrypt(cost int) *Bcrypt {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash derives a digest from the plain value.
func (b *Bcrypt) Hash(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), b.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Compare reports whether plain matches the stored digest.
func (b *Bcrypt) Compare(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

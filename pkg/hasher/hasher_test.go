package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptRoundTrip(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	digest, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", digest)

	assert.True(t, h.Compare("s3cret", digest))
	assert.False(t, h.Compare("other", digest))
}

func TestBcryptCompareGarbageDigest(t *testing.T) {
	h := NewBcrypt(0)
	assert.False(t, h.Compare("anything", "not-a-bcrypt-digest"))
}

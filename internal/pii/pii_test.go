package pii_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/pii"
)

func TestHashNormalisesRecipient(t *testing.T) {
	h := pii.NewHasher("secret")

	a, err := h.Hash(pii.Recipient{Name: "Ana  Tenant", Phone: "+1 (555) 010-2000", Email: "Ana@Example.com "})
	require.NoError(t, err)
	b, err := h.Hash(pii.Recipient{Name: "ana tenant", Phone: "+15550102000", Email: "ana@example.com"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashDependsOnKeyAndFields(t *testing.T) {
	r := pii.Recipient{Name: "Ana Tenant", Email: "ana@example.com"}

	a, err := pii.NewHasher("one").Hash(r)
	require.NoError(t, err)
	b, err := pii.NewHasher("two").Hash(r)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// field boundaries are kept apart
	c, err := pii.NewHasher("one").Hash(pii.Recipient{Name: "Ana Tenantana@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestHashLongSecret(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'k'
	}
	_, err := pii.NewHasher(string(long)).Hash(pii.Recipient{Name: "x"})
	assert.NoError(t, err)
}

func TestHashRequiresName(t *testing.T) {
	_, err := pii.NewHasher("secret").Hash(pii.Recipient{Email: "a@b.c"})
	assert.Equal(t, fault.ErrRecipientRequired, err)
}

package credential

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how often the wrapped store is written.
type countingStore struct {
	*FileStore
	writes int
}

func (c *countingStore) Write(cred Credential) error {
	c.writes++
	return c.FileStore.Write(cred)
}

func TestPersistingTokenSourceWritesRefreshedToken(t *testing.T) {
	ts := newTokenServer(t, "fresh")
	store := &countingStore{FileStore: NewFileStore(filepath.Join(t.TempDir(), "token.json"), slogDiscard())}
	cred := Credential{Token: expiredToken("old"), Scopes: []string{modifyScope}}

	src := PersistingTokenSource(ts.config(modifyScope), cred, store, slogDiscard())
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, int32(1), ts.calls.Load())
	assert.Equal(t, 1, store.writes)

	stored, ok, err := store.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", stored.Token.AccessToken)
	assert.Equal(t, "refresh-old", stored.Token.RefreshToken)
	assert.Equal(t, []string{modifyScope}, stored.Scopes)
	assert.True(t, stored.Valid())

	again, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", again.AccessToken)
	assert.Equal(t, 1, store.writes)
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestPersistingTokenSourceSkipsWriteForValidToken(t *testing.T) {
	ts := newTokenServer(t, "unused")
	store := &countingStore{FileStore: NewFileStore(filepath.Join(t.TempDir(), "token.json"), slogDiscard())}
	cred := Credential{Token: validToken("current"), Scopes: []string{modifyScope}}

	tok, err := PersistingTokenSource(ts.config(modifyScope), cred, store, slogDiscard()).Token()
	require.NoError(t, err)
	assert.Equal(t, "current", tok.AccessToken)
	assert.Zero(t, store.writes)
	assert.Zero(t, ts.calls.Load())
}

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeTags(t *testing.T) {
	assert.Equal(t, "", EncodeTags(nil))
	assert.Equal(t, ",a,", EncodeTags([]string{"a"}))
	assert.Equal(t, ",a,b,", EncodeTags([]string{"a", "b"}))

	assert.Nil(t, DecodeTags(""))
	assert.Equal(t, []string{"a", "b"}, DecodeTags(",a,b,"))
	assert.Equal(t, []string{"a"}, DecodeTags(",a,"))
}

func TestGlobToLike(t *testing.T) {
	assert.Equal(t, "customer:%", GlobToLike("customer:*"))
	assert.Equal(t, "order:_", GlobToLike("order:?"))
	assert.Equal(t, `100\%`, GlobToLike("100%"))
	assert.Equal(t, `a\_b%`, GlobToLike("a_b*"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.IsRegistered("sqlite"))
	assert.Empty(t, r.AvailableTypes())

	_, err := r.Create("sqlite", nil)
	assert.Error(t, err)
}

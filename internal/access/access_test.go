package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

func TestParseAdminSet(t *testing.T) {
	s, err := ParseAdminSet(" 1, 42,,7 ")
	require.NoError(t, err)

	assert.True(t, s.IsAdmin(model.Actor{UserID: 42}))
	assert.True(t, s.IsAdmin(model.Actor{UserID: 7}))
	assert.False(t, s.IsAdmin(model.Actor{UserID: 2}))

	_, err = ParseAdminSet("1,x")
	require.Error(t, err)

	empty, err := ParseAdminSet("")
	require.NoError(t, err)
	assert.False(t, empty.IsAdmin(model.Actor{UserID: 1}))
}

func TestRequireAdmin(t *testing.T) {
	s := NewAdminSet(1)

	require.NoError(t, RequireAdmin(s, model.Actor{UserID: 1}))
	require.ErrorIs(t, RequireAdmin(s, model.Actor{UserID: 2}), model.ErrForbidden)
	require.ErrorIs(t, RequireAdmin(nil, model.Actor{UserID: 1}), model.ErrForbidden)
}

package branch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/m/internal/apperr"
	"retailpos/m/internal/identity"
	"retailpos/m/internal/testutil"
)

func newTestDirectory(t *testing.T) (*Directory, int64) {
	t.Helper()
	db := testutil.OpenDB(t)
	users := identity.NewService(db, "secret", time.Hour, nil)
	manager, err := users.CreateUser(context.Background(), "gerente", "jefe1", "manager")
	require.NoError(t, err)
	return NewDirectory(db, users, nil), manager.ID
}

func TestCreateGetListDelete(t *testing.T) {
	d, managerID := newTestDirectory(t)
	ctx := context.Background()

	centro, err := d.Create(ctx, "  Centro  ", managerID)
	require.NoError(t, err)
	assert.Equal(t, "Centro", centro.Location)
	assert.Equal(t, managerID, centro.ManagerID)

	norte, err := d.Create(ctx, "Norte", managerID)
	require.NoError(t, err)

	got, err := d.Get(ctx, centro.ID)
	require.NoError(t, err)
	assert.Equal(t, centro.Location, got.Location)
	assert.True(t, centro.CreatedAt.Equal(got.CreatedAt))

	all, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, centro.ID, all[0].ID)
	assert.Equal(t, norte.ID, all[1].ID)

	require.NoError(t, d.Delete(ctx, centro.ID))
	_, err = d.Get(ctx, centro.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(d.Delete(ctx, centro.ID), apperr.KindNotFound))
}

func TestCreateValidation(t *testing.T) {
	d, managerID := newTestDirectory(t)
	ctx := context.Background()

	_, err := d.Create(ctx, "", managerID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = d.Create(ctx, "Sur", 0)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "managerId")

	_, err = d.Create(ctx, "Sur", 4040)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown manager")
}

type brokenUsers struct{}

func (brokenUsers) UserExists(context.Context, int64) (bool, error) {
	return false, errors.New("connection reset")
}

func TestCreatePropagatesLookupFailure(t *testing.T) {
	d := NewDirectory(testutil.OpenDB(t), brokenUsers{}, nil)
	_, err := d.Create(context.Background(), "Sur", 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, 0, testutil.Count(t, d.db, "branches"))
}

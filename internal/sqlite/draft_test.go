package sqlite

import (
	"context"
	"testing"

	"github.com/rpggio/fieldaudit/internal/domain/draft"
	"github.com/rpggio/fieldaudit/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestDraftStore_GetSetDelete(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	store := NewDraftStore(db)

	_, err := store.Get(ctx, "draft:t:none:none")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, store.Set(ctx, "draft:t:none:none", []byte(`{"v":1}`)))
	require.NoError(t, store.Set(ctx, "draft:t:none:none", []byte(`{"v":2}`)))
	require.NoError(t, store.Set(ctx, "other", []byte(`x`)))

	value, err := store.Get(ctx, "draft:t:none:none")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(value))

	keys, err := store.Keys(ctx, "draft:")
	require.NoError(t, err)
	require.Equal(t, []string{"draft:t:none:none"}, keys)

	require.NoError(t, store.Delete(ctx, "draft:t:none:none"))
	require.NoError(t, store.Delete(ctx, "draft:t:none:none"))
	_, err = store.Get(ctx, "draft:t:none:none")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDraftStore_BacksDraftService(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	svc := draft.NewService(NewDraftStore(db), nil)

	key := draft.Key{TemplateID: "tpl", LocationID: "store-1"}
	require.NoError(t, svc.Save(ctx, &draft.Snapshot{Key: key, Token: "tok", CurrentStep: 3}))

	snap, err := svc.Load(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "tok", snap.Token)
	require.Equal(t, 3, snap.CurrentStep)

	drafts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	require.NoError(t, svc.Clear(ctx, key))
	_, err = svc.Load(ctx, key)
	require.ErrorIs(t, err, draft.ErrDraftNotFound)
}

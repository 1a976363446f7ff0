package index

import (
	"context"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/nrtindex/internal/store"
)

func newMemStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func openTestWriter(t *testing.T, st *store.Store, tr *GenerationTracker, opts WriterOptions) *Writer {
	t.Helper()
	w, err := OpenWriter(context.Background(), st, store.CreateOrAppend, tr, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func snapshotIDs(t *testing.T, snap *store.Snapshot, text string) []string {
	t.Helper()
	ids, _, err := snap.Search(context.Background(), bleve.NewMatchQuery(text), 100, nil)
	require.NoError(t, err)
	return ids
}

func storeIDs(t *testing.T, st *store.Store, text string) []string {
	t.Helper()
	snap, err := st.Snapshot(store.OpenExisting)
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()
	return snapshotIDs(t, snap, text)
}

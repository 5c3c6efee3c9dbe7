package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-case-tracker/internal/models"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot")
	store, err := Open(path)
	require.NoError(t, err)
	return store, path
}

func TestLoad_Empty(t *testing.T) {
	store, _ := openTestStore(t)
	defer store.Close()

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSaveLoad_PreservesOrderAndReplaces(t *testing.T) {
	store, path := openTestStore(t)
	fixed := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	img := "http://localhost:8000/files/c/photo.png"
	first := []models.Case{
		{ID: 9, Name: "Torre", ImageRef: &img},
		{ID: 2, Name: "Ponte", Progress: 40},
		{ID: 5, Name: "Viaduto"},
	}
	require.NoError(t, store.Save(first))

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Cases, 3)
	assert.Equal(t, []int{9, 2, 5}, ids(snap.Cases))
	require.NotNil(t, snap.Cases[0].ImageRef)
	assert.Equal(t, img, *snap.Cases[0].ImageRef)
	assert.True(t, snap.SavedAt.Equal(fixed))

	// Full replacement: case 5 disappears
	require.NoError(t, store.Save([]models.Case{{ID: 2, Name: "Ponte nova"}}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	snap, err = reopened.Load()
	require.NoError(t, err)
	require.Len(t, snap.Cases, 1)
	assert.Equal(t, "Ponte nova", snap.Cases[0].Name)

	count := 0
	require.NoError(t, reopened.db.Scan(caseKeyPrefix, func([]byte) error {
		count++
		return nil
	}))
	assert.Equal(t, 1, count, "stale case keys are removed")
}

func TestCasesRefreshed_SavesEmptyCollection(t *testing.T) {
	store, _ := openTestStore(t)
	defer store.Close()

	store.CasesRefreshed([]models.Case{{ID: 1}})
	store.CasesRefreshed([]models.Case{})

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Cases)
}

func ids(cases []models.Case) []int {
	out := make([]int, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.ID)
	}
	return out
}

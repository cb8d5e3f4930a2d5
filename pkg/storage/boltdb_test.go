package storage

import (
	"testing"
	"time"

	"github.com/cuemby/embedded-cassandra/pkg/types"
	"github.com/cuemby/embedded-cassandra/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instance(name string, started time.Time) *types.Instance {
	return &types.Instance{
		Name: name,
		Pid:  1000,
		Settings: types.Settings{
			Name:    name,
			Version: version.MustParse("4.1.3"),
			Address: "127.0.0.1",
			Port:    9042,
		},
		StartedAt: started,
	}
}

func TestBoltStore_CRUD(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	require.NoError(t, store.PutInstance(instance("b", now)))
	require.NoError(t, store.PutInstance(instance("a", now.Add(-time.Minute))))

	got, err := store.GetInstance("b")
	require.NoError(t, err)
	assert.Equal(t, 9042, got.Settings.Port)
	assert.Equal(t, "4.1.3", got.Settings.Version.String())

	list, err := store.ListInstances()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)

	require.NoError(t, store.DeleteInstance("b"))
	require.NoError(t, store.DeleteInstance("b"))

	_, err = store.GetInstance("b")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.PutInstance(instance("persisted", time.Now())))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetInstance("persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
}

func TestBoltStore_Upsert(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	inst := instance("x", time.Now())
	require.NoError(t, store.PutInstance(inst))
	inst.Pid = 2000
	require.NoError(t, store.PutInstance(inst))

	list, err := store.ListInstances()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2000, list[0].Pid)
}

package sync_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/sync"
	"github.com/trezcool/shule/storage/database/inmem"
)

type fakeRecord struct {
	key  string
	name string
}

func (r fakeRecord) ExternalKey() string { return r.key }

// fakeStore acts as the local entity table a Descriptor writes to.
type fakeStore struct {
	seq     int
	rows    map[string]string // local ID -> name
	created int
	updated int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]string)}
}

func (s *fakeStore) descriptor() sync.Descriptor {
	return sync.Descriptor{
		LocalType:    sync.LocalUser,
		ExternalType: sync.ExternalOneRosterUser,
		Create: func(ctx context.Context, rec sync.Record) (string, error) {
			s.seq++
			id := string(rune('a' + s.seq))
			s.rows[id] = rec.(fakeRecord).name
			s.created++
			return id, nil
		},
		Update: func(ctx context.Context, localID string, rec sync.Record) (bool, error) {
			name := rec.(fakeRecord).name
			if s.rows[localID] == name {
				return false, nil
			}
			s.rows[localID] = name
			s.updated++
			return true, nil
		},
	}
}

func newReconciler() (*sync.Reconciler, *sync.MappingStore) {
	repo := inmemdb.NewSyncRepository(inmemdb.NewDB())
	mappings := sync.NewMappingStore(repo)
	return sync.NewReconciler(mappings), mappings
}

func TestReconciler_createThenUpdate(t *testing.T) {
	rec, mappings := newReconciler()
	store := newFakeStore()
	d := store.descriptor()
	ctx := context.Background()

	// first sighting creates the local entity and the mapping
	out, err := rec.Reconcile(ctx, "cfg1", d, fakeRecord{key: "ext1", name: "Jo"})
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.False(t, out.Updated)
	assert.Equal(t, sync.LocalUser, out.Mapping.LocalType)
	assert.Equal(t, "ext1", out.Mapping.ExternalID)
	assert.Equal(t, 1, store.created)

	firstSynced := out.Mapping.LastSyncedAt

	// replaying the identical record is a no-op write but still touches the mapping
	out2, err := rec.Reconcile(ctx, "cfg1", d, fakeRecord{key: "ext1", name: "Jo"})
	require.NoError(t, err)
	assert.False(t, out2.Created)
	assert.False(t, out2.Updated)
	assert.Equal(t, out.Mapping.ID, out2.Mapping.ID)
	assert.Equal(t, 1, store.created)
	assert.Equal(t, 0, store.updated)

	m, err := mappings.FindExternal(ctx, "cfg1", d.ExternalType, "ext1")
	require.NoError(t, err)
	assert.False(t, m.LastSyncedAt.Before(firstSynced))

	// a changed record updates the mapped entity in place
	out3, err := rec.Reconcile(ctx, "cfg1", d, fakeRecord{key: "ext1", name: "Joanna"})
	require.NoError(t, err)
	assert.False(t, out3.Created)
	assert.True(t, out3.Updated)
	assert.Equal(t, 1, store.created)
	assert.Equal(t, "Joanna", store.rows[out.Mapping.LocalID])
}

func TestReconciler_missingExternalKey(t *testing.T) {
	rec, _ := newReconciler()
	store := newFakeStore()

	_, err := rec.Reconcile(context.Background(), "cfg1", store.descriptor(), fakeRecord{})
	require.Error(t, err)
	assert.Equal(t, 0, store.created)
}

func TestReconciler_configScoping(t *testing.T) {
	rec, _ := newReconciler()
	store := newFakeStore()
	d := store.descriptor()
	ctx := context.Background()

	// the same external ID under two configs maps to two distinct locals
	out1, err := rec.Reconcile(ctx, "cfg1", d, fakeRecord{key: "ext1", name: "Jo"})
	require.NoError(t, err)
	out2, err := rec.Reconcile(ctx, "cfg2", d, fakeRecord{key: "ext1", name: "Jo"})
	require.NoError(t, err)

	assert.True(t, out1.Created)
	assert.True(t, out2.Created)
	assert.NotEqual(t, out1.Mapping.LocalID, out2.Mapping.LocalID)
}

func TestMappingStore_uniqueness(t *testing.T) {
	_, mappings := newReconciler()
	ctx := context.Background()

	_, err := mappings.Create(ctx, "cfg1", sync.LocalUser, "u1", sync.ExternalOneRosterUser, "ext1")
	require.NoError(t, err)

	tests := []struct {
		name       string
		localID    string
		externalID string
	}{
		{name: "duplicate local side", localID: "u1", externalID: "ext2"},
		{name: "duplicate external side", localID: "u2", externalID: "ext1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mappings.Create(ctx, "cfg1", sync.LocalUser, tt.localID, sync.ExternalOneRosterUser, tt.externalID)
			assert.Equal(t, sync.ErrMappingExists, errors.Cause(err))
		})
	}

	// both sides free under another config
	_, err = mappings.Create(ctx, "cfg2", sync.LocalUser, "u1", sync.ExternalOneRosterUser, "ext1")
	assert.NoError(t, err)
}

func TestMappingStore_rejectsUnknownKinds(t *testing.T) {
	_, mappings := newReconciler()
	ctx := context.Background()

	_, err := mappings.Create(ctx, "cfg1", sync.LocalType("alien"), "u1", sync.ExternalOneRosterUser, "ext1")
	assert.Error(t, err)
	_, err = mappings.Create(ctx, "cfg1", sync.LocalUser, "u1", sync.ExternalType("alien"), "ext1")
	assert.Error(t, err)
}

func TestMappingStore_findLocal(t *testing.T) {
	_, mappings := newReconciler()
	ctx := context.Background()

	created, err := mappings.Create(ctx, "cfg1", sync.LocalAssignment, "asg1", sync.ExternalClassroomCoursework, "cw1")
	require.NoError(t, err)

	m, err := mappings.FindLocal(ctx, "cfg1", sync.LocalAssignment, "asg1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, m.ID)
	assert.Equal(t, "cw1", m.ExternalID)

	_, err = mappings.FindLocal(ctx, "cfg1", sync.LocalAssignment, "nope")
	assert.Equal(t, sync.ErrMappingNotFound, errors.Cause(err))
}

package sync

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// MappingStore is the permanent bidirectional identity map between local
// entities and external records, scoped per integration config.
type MappingStore struct {
	repo Repository
}

func NewMappingStore(repo Repository) *MappingStore {
	return &MappingStore{repo: repo}
}

// FindExternal looks a mapping up by its external identity.
func (s *MappingStore) FindExternal(ctx context.Context, configID string, et ExternalType, externalID string) (Mapping, error) {
	return s.repo.GetMappingByExternal(ctx, configID, et, externalID)
}

// FindLocal looks a mapping up by its local identity; used by push connectors
// to resolve the external ID of a known local entity.
func (s *MappingStore) FindLocal(ctx context.Context, configID string, lt LocalType, localID string) (Mapping, error) {
	return s.repo.GetMappingByLocal(ctx, configID, lt, localID)
}

// Create records a brand new mapping. Both identity sides must be unused;
// ErrMappingExists otherwise.
func (s *MappingStore) Create(ctx context.Context, configID string, lt LocalType, localID string, et ExternalType, externalID string) (Mapping, error) {
	if !lt.Valid() {
		return Mapping{}, errors.Errorf("unknown local type %q", lt)
	}
	if !et.Valid() {
		return Mapping{}, errors.Errorf("unknown external type %q", et)
	}

	now := time.Now().UTC()
	m := Mapping{
		IntegrationConfigID: configID,
		LocalType:           lt,
		LocalID:             localID,
		ExternalType:        et,
		ExternalID:          externalID,
		LastSyncedAt:        now,
		CreatedAt:           now,
	}
	m, err := s.repo.CreateMapping(ctx, m)
	if err != nil {
		if errors.Cause(err) == ErrMappingExists {
			return Mapping{}, err
		}
		return Mapping{}, errors.Wrap(err, "creating sync mapping")
	}
	return m, nil
}

// Touch refreshes last_synced_at on an existing mapping.
func (s *MappingStore) Touch(ctx context.Context, m Mapping) error {
	if err := s.repo.TouchMapping(ctx, m.ID, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "touching sync mapping")
	}
	return nil
}

// Query returns all mappings for one integration config.
func (s *MappingStore) Query(ctx context.Context, configID string) ([]Mapping, error) {
	return s.repo.QueryMappingsByConfigID(ctx, configID)
}

package sync

import (
	"context"

	"github.com/pkg/errors"
)

type (
	// Record is one external row, already decoded by a connector.
	Record interface {
		// ExternalKey returns the provider-assigned identifier.
		ExternalKey() string
	}

	// Descriptor binds one (local kind, external kind) pair to its typed
	// handlers. Both providers share the same reconciliation code path; only
	// the descriptor differs per entity type.
	Descriptor struct {
		LocalType    LocalType
		ExternalType ExternalType

		// Create builds and persists a new local entity from rec through the
		// normal validated create path, resolving any required parent
		// references. Returns the new local ID.
		Create func(ctx context.Context, rec Record) (string, error)

		// Update loads the mapped local entity, compares externally-sourced
		// fields against it and writes only when something differs. Reports
		// whether a write happened.
		Update func(ctx context.Context, localID string, rec Record) (bool, error)
	}

	// Outcome reports what one reconciliation did.
	Outcome struct {
		Mapping Mapping
		Created bool
		Updated bool
	}

	// Reconciler aligns external records with local entities via the mapping
	// store: find-by-external-id, else create-then-map, else diff-and-update.
	// Re-processing an already-mapped, unchanged record is a no-op write,
	// which is what makes whole-run replays safe.
	Reconciler struct {
		mappings *MappingStore
	}
)

// Validate rejects unknown kinds and missing handlers eagerly, before any
// record is processed.
func (d Descriptor) Validate() error {
	if !d.LocalType.Valid() {
		return errors.Errorf("descriptor: unknown local type %q", d.LocalType)
	}
	if !d.ExternalType.Valid() {
		return errors.Errorf("descriptor: unknown external type %q", d.ExternalType)
	}
	if d.Create == nil || d.Update == nil {
		return errors.Errorf("descriptor %s/%s: missing handler", d.LocalType, d.ExternalType)
	}
	return nil
}

func NewReconciler(mappings *MappingStore) *Reconciler {
	return &Reconciler{mappings: mappings}
}

func (r *Reconciler) Reconcile(ctx context.Context, configID string, d Descriptor, rec Record) (Outcome, error) {
	extID := rec.ExternalKey()
	if extID == "" {
		return Outcome{}, errors.New("record has no external ID")
	}

	m, err := r.mappings.FindExternal(ctx, configID, d.ExternalType, extID)
	switch errors.Cause(err) {
	case nil:
		updated, err := d.Update(ctx, m.LocalID, rec)
		if err != nil {
			return Outcome{}, errors.Wrapf(err, "updating %s %s", d.LocalType, m.LocalID)
		}
		// last_synced_at is refreshed even when nothing changed.
		if err := r.mappings.Touch(ctx, m); err != nil {
			return Outcome{}, err
		}
		return Outcome{Mapping: m, Updated: updated}, nil

	case ErrMappingNotFound:
		localID, err := d.Create(ctx, rec)
		if err != nil {
			return Outcome{}, errors.Wrapf(err, "creating %s for external %s", d.LocalType, extID)
		}
		m, err := r.mappings.Create(ctx, configID, d.LocalType, localID, d.ExternalType, extID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Mapping: m, Created: true}, nil

	default:
		return Outcome{}, errors.Wrapf(err, "looking up mapping for external %s", extID)
	}
}

// MappingStore exposes the underlying store for push connectors that resolve
// mapping chains directly.
func (r *Reconciler) MappingStore() *MappingStore { return r.mappings }

package sync

import (
	"context"
	"fmt"
)

type (
	// Pass is one entity-type stage of a pull sync. Passes run to completion
	// in the order given, because later passes depend on mappings created by
	// earlier ones (org -> session -> user -> class -> enrollment).
	Pass struct {
		Name       string
		Descriptor Descriptor

		// Fetch returns every record of this pass's entity type. A Fetch
		// failure is always fatal: no partial reconciliation of a pass begins
		// until its records are fully in hand.
		Fetch func(ctx context.Context) ([]Record, error)

		// Skip reports records that must be ignored without being counted at
		// all (e.g. marked to-be-deleted upstream). Optional.
		Skip func(rec Record) bool

		// Exclude returns a non-empty reason when the record is not
		// applicable (e.g. a user with no email): logged as a warning and
		// counted as processed only. Optional.
		Exclude func(rec Record) string
	}

	// Processor drives a Run's passes with per-record failure isolation: one
	// bad row never aborts the batch; only fatal errors escape the loop.
	Processor struct {
		reconciler *Reconciler
	}
)

func NewProcessor(reconciler *Reconciler) *Processor {
	return &Processor{reconciler: reconciler}
}

func (p *Processor) Reconciler() *Reconciler { return p.reconciler }

// Run executes the given passes in order against one Run. The returned error,
// if any, is run-level; the caller marks the Run failed and re-raises it.
func (p *Processor) Run(ctx context.Context, h *RunHandle, configID string, passes []Pass) error {
	for _, pass := range passes {
		if err := pass.Descriptor.Validate(); err != nil {
			return Fatal(err)
		}
		if err := p.runPass(ctx, h, configID, pass); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) runPass(ctx context.Context, h *RunHandle, configID string, pass Pass) error {
	recs, err := pass.Fetch(ctx)
	if err != nil {
		if IsFatal(err) {
			return err
		}
		return Fatal(fmt.Errorf("fetching %s records: %v", pass.Name, err))
	}

	for _, rec := range recs {
		if pass.Skip != nil && pass.Skip(rec) {
			continue
		}
		h.MarkProcessed()

		if pass.Exclude != nil {
			if reason := pass.Exclude(rec); reason != "" {
				h.LogWarn(ctx, reason, Ref{
					EntityType: pass.Descriptor.LocalType,
					ExternalID: rec.ExternalKey(),
				})
				continue
			}
		}

		out, err := p.reconciler.Reconcile(ctx, configID, pass.Descriptor, rec)
		if err != nil {
			if IsFatal(err) {
				return err
			}
			h.LogError(ctx, err.Error(), Ref{
				EntityType: pass.Descriptor.LocalType,
				ExternalID: rec.ExternalKey(),
			})
			h.MarkFailed()
			continue
		}

		h.MarkSucceeded()
		if out.Created {
			h.LogInfo(ctx, fmt.Sprintf("created %s", pass.Descriptor.LocalType), Ref{
				EntityType: pass.Descriptor.LocalType,
				EntityID:   out.Mapping.LocalID,
				ExternalID: rec.ExternalKey(),
			})
		}
	}
	return nil
}

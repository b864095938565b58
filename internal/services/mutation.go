// Package services – MutationRunner
//
// This file implements the transactional entry point for every client write:
// one database transaction that (a) consults the idempotency ledger,
// (b) executes the business mutation, (c) records the result snapshot, and
// (d) stages the mutation's domain events in the outbox. Either all of it
// commits or none of it does, so there is no window in which a mutation is
// visible without its events, or vice versa.
package services

import (
	"context"
	"errors"
	"strings"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"

	"github.com/tbourn/go-platform-core/internal/domain"
	"github.com/tbourn/go-platform-core/internal/repo"
)

// MutationFunc is the business body executed inside the runner's transaction.
// It performs the actual mutation on tx and returns the caller-facing result
// plus the domain events describing what happened. Returning an error rolls
// everything back: the mutation, the snapshot, and the events.
type MutationFunc func(tx *gorm.DB) (result any, events []domain.EventDraft, err error)

// MutationRequest identifies one client write attempt.
//
// ClientRequestID is the client-supplied idempotency key. An empty value
// opts out of deduplication: the caller accepts at-least-once effects.
type MutationRequest struct {
	TenantID        string
	ClientRequestID string
	Operation       string
}

// MutationOutcome is what Execute returns for both fresh and replayed runs.
type MutationOutcome struct {
	// ResultSnapshot is the JSON-serialized result: freshly produced for a
	// first run, or the previously persisted snapshot for a replay.
	ResultSnapshot string
	// Replayed is true when the outcome came from the ledger rather than
	// from executing the body.
	Replayed bool
}

// DecodeResult unmarshals the snapshot into out.
func (o MutationOutcome) DecodeResult(out any) error {
	return json.Unmarshal([]byte(o.ResultSnapshot), out)
}

// MutationRunner guards business mutations with the idempotency ledger and
// stages their events through the transactional outbox. It is the single
// chokepoint for event staging: nothing publishes to a transport from inside
// request handling.
type MutationRunner struct {
	// DB is the database handle transactions are opened on.
	DB *gorm.DB
}

// NewMutationRunner returns a runner bound to db.
func NewMutationRunner(db *gorm.DB) *MutationRunner {
	return &MutationRunner{DB: db}
}

// Execute runs body under the idempotency and outbox guarantees.
//
// Semantics:
//   - With a ClientRequestID, a prior record for (tenant, request, operation)
//     short-circuits the call: body is not executed and the stored snapshot
//     is returned with Replayed=true.
//   - Otherwise body runs, its result is serialized, the ledger row is
//     inserted, and every returned event is staged with published_at NULL,
//     all on one transaction.
//   - If the ledger insert hits a unique violation (two concurrent requests
//     both observed no prior record), this attempt rolls back completely and
//     the winner's snapshot is re-fetched and returned as a replay. The
//     conflict is not an error.
//
// Errors from body or from the commit surface synchronously to the caller;
// no partial commit is possible.
func (r *MutationRunner) Execute(ctx context.Context, req MutationRequest, body MutationFunc) (*MutationOutcome, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, ErrNoTenant
	}
	if strings.TrimSpace(req.Operation) == "" {
		return nil, ErrNoOperation
	}

	dedup := strings.TrimSpace(req.ClientRequestID) != ""
	var outcome MutationOutcome

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if dedup {
			prior, err := repo.CheckIdempotency(tx, req.TenantID, req.ClientRequestID, req.Operation)
			switch {
			case err == nil:
				outcome = MutationOutcome{ResultSnapshot: prior.ResultSnapshot, Replayed: true}
				return nil
			case !errors.Is(err, repo.ErrNotFound):
				return err
			}
		}

		result, events, err := body(tx)
		if err != nil {
			return err
		}

		snapshot, err := json.Marshal(result)
		if err != nil {
			return err
		}

		if dedup {
			if _, err := repo.SaveIdempotency(tx, req.TenantID, req.ClientRequestID, req.Operation, string(snapshot)); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					// A concurrent attempt committed first; abandon ours.
					return errReplayConflict
				}
				return err
			}
		}

		if _, err := repo.StageOutboxEvents(tx, req.TenantID, events); err != nil {
			return err
		}

		outcome = MutationOutcome{ResultSnapshot: string(snapshot)}
		return nil
	})

	if errors.Is(err, errReplayConflict) {
		// The winner's transaction is committed by now; serve its snapshot.
		prior, ferr := repo.CheckIdempotency(r.DB.WithContext(ctx), req.TenantID, req.ClientRequestID, req.Operation)
		if ferr != nil {
			return nil, ferr
		}
		return &MutationOutcome{ResultSnapshot: prior.ResultSnapshot, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

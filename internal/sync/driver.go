// Package sync is the sync driver of spec.md §2/§6: it pulls operations
// ready for sync from an offline.Manager, hands them to a Transport, and
// feeds acknowledgements or failures back into the manager so its retry
// bound stays enforced end to end.
package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"collabedit/internal/logging"
	"collabedit/internal/offline"
	"collabedit/pkg/ot"
)

// Transport sends a single queued operation to the remote authority and
// reports the outcome. Implementations: internal/editor's storageTransport
// (an adapter over storage.Store) on the server side, a fake in tests.
type Transport interface {
	// Send transmits rec and returns the server-assigned version it was
	// accepted at, or an error if the remote authority rejected or could
	// not be reached.
	Send(ctx context.Context, documentID string, rec ot.OperationRecord) (version int, err error)
}

// Driver runs the sync loop for one document's offline.Manager: on each
// Tick, it pulls every operation offline.Manager.GetOperationsForSync
// reports ready and offers it to Transport in order, stopping at the
// first failure so later operations keep their place in line (FIFO,
// spec.md §3).
type Driver struct {
	documentID string
	manager    *offline.Manager
	transport  Transport
	log        *zap.Logger
}

// New constructs a Driver for documentID, wrapping manager and transport.
func New(documentID string, manager *offline.Manager, transport Transport) *Driver {
	return &Driver{
		documentID: documentID,
		manager:    manager,
		transport:  transport,
		log:        logging.WithDocument(documentID),
	}
}

// Tick runs one sync pass: every retryable queued operation is offered to
// the transport, in FIFO order, until one fails. A failure marks that
// operation failed (feeding the OOM's retry/eviction state machine) and
// stops the pass — operations behind it stay queued rather than racing
// ahead out of order.
func (d *Driver) Tick(ctx context.Context) {
	if d.manager.IsSyncInProgress() {
		return
	}

	d.manager.SetSyncInProgress(true)
	defer d.manager.SetSyncInProgress(false)

	for _, queued := range d.manager.GetOperationsForSync() {
		version, err := d.transport.Send(ctx, d.documentID, queued.Record)
		if err != nil {
			d.log.Warn("sync failed", zap.String("operationId", queued.ID), zap.Error(err))
			d.manager.MarkOperationFailed(queued.ID, err)
			return
		}

		d.manager.RemoveOperation(queued.ID)
		d.manager.UpdateLastSyncVersion(version)
		d.log.Debug("synced operation", zap.String("operationId", queued.ID), zap.Int("version", version))
	}
}

// Run calls Tick on interval until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

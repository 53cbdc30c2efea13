// Package tracker follows a cross-chain transaction from its inbound hash
// until the outbound leg lands on the target chain (or the session times out).
package tracker

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/omnivault/omnivault/pkg/models"
)

// DefaultPollInterval is the delay between indexer polls.
const DefaultPollInterval = 3 * time.Second

// DefaultTimeout bounds a tracking session when the caller does not.
const DefaultTimeout = 300 * time.Second

// ProgressFunc receives a snapshot after every poll cycle that changed
// the record. The snapshot is a copy; callers may retain it.
type ProgressFunc func(progress models.CctxProgress)

// Tracker polls the indexer for the lifecycle of cross-chain transactions.
// A single Tracker serves any number of concurrent sessions.
type Tracker struct {
	indexer      Indexer
	pollInterval time.Duration
	logger       *slog.Logger
}

func New(indexer Indexer, pollInterval time.Duration) *Tracker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Tracker{
		indexer:      indexer,
		pollInterval: pollInterval,
		logger:       slog.Default().With("component", "tracker"),
	}
}

// Track polls until the transaction reaches a terminal status or the timeout
// elapses. Indexer hiccups during a cycle are logged and retried on the next
// tick rather than ending the session. A timed-out session returns a record
// with StatusTimeout and a nil error; the caller decides what that means.
func (t *Tracker) Track(ctx context.Context, inboundHash string, timeout time.Duration, onProgress ProgressFunc) (*models.CctxProgress, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	progress := &models.CctxProgress{
		SessionID:   uuid.NewString(),
		InboundHash: inboundHash,
		Status:      models.StatusPending,
		UpdatedAt:   time.Now(),
	}

	logger := t.logger.With("session", progress.SessionID, "inbound_hash", inboundHash)
	logger.Info("tracking started", "timeout", timeout)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	// First poll runs immediately; the ticker paces the rest.
	for {
		if changed, err := t.poll(ctx, progress); err != nil {
			logger.Error("poll cycle failed", "error", err)
		} else if changed {
			logger.Info("progress",
				"status", progress.Status,
				"confirmations", progress.Confirmations,
				"outbound_hash", progress.OutboundHash,
			)
			if onProgress != nil {
				onProgress(*progress)
			}
		}

		if progress.Status.Terminal() {
			logger.Info("tracking finished", "status", progress.Status)
			return progress, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			logger.Warn("tracking timed out", "last_status", progress.Status)
			progress.Status = models.StatusTimeout
			progress.UpdatedAt = time.Now()
			if onProgress != nil {
				onProgress(*progress)
			}
			return progress, nil
		case <-ticker.C:
		}
	}
}

// poll fetches the current indexer view and folds it into the record.
// Returns whether the record changed this cycle.
func (t *Tracker) poll(ctx context.Context, progress *models.CctxProgress) (bool, error) {
	txs, err := t.indexer.CctxByInboundHash(ctx, progress.InboundHash)
	if err != nil {
		return false, err
	}
	if len(txs) == 0 {
		return false, nil
	}
	cctx := txs[0]

	height, err := t.indexer.FinalizedHeight(ctx)
	if err != nil {
		return false, err
	}

	changed := false

	if next := statusOf(cctx); progress.Status.Advances(next) {
		progress.Status = next
		changed = true
	}

	if conf := confirmations(cctx, height); conf != progress.Confirmations {
		progress.Confirmations = conf
		changed = true
	}

	if updateDetails(progress, cctx, height) {
		changed = true
	}

	if changed {
		progress.UpdatedAt = time.Now()
	}
	return changed, nil
}

// statusOf maps the remote view onto the client-visible status ladder.
func statusOf(cctx CrossChainTx) models.TrackingStatus {
	switch cctx.CctxStatus.Status {
	case RemoteOutboundMined:
		return models.StatusCompleted
	case RemoteAborted, RemoteReverted:
		return models.StatusFailed
	}
	for _, out := range cctx.OutboundParams {
		if out.Hash != "" {
			return models.StatusOutboundBroadcasted
		}
	}
	if cctx.InboundParams.TxFinalizationStatus == FinalizationExecuted {
		return models.StatusInboundConfirmed
	}
	return models.StatusPending
}

// confirmations is the finalized-height delta since the inbound leg landed.
func confirmations(cctx CrossChainTx, height uint64) uint64 {
	inbound := cctx.InboundParams.FinalizedZetaHeight
	if inbound == 0 || height <= inbound {
		return 0
	}
	return height - inbound
}

func updateDetails(progress *models.CctxProgress, cctx CrossChainTx, height uint64) bool {
	changed := false

	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&progress.Asset, cctx.InboundParams.Asset)
	set(&progress.Sender, cctx.InboundParams.Sender)
	set(&progress.ErrorMessage, cctx.CctxStatus.StatusMessage)

	if amt, ok := new(big.Int).SetString(cctx.InboundParams.Amount, 10); ok {
		if progress.Amount == nil || progress.Amount.Cmp(amt) != 0 {
			progress.Amount = amt
			changed = true
		}
	}

	if h := cctx.InboundParams.FinalizedZetaHeight; h != 0 && progress.InboundHeight != h {
		progress.InboundHeight = h
		changed = true
	}
	if height != 0 && progress.CurrentHeight != height {
		progress.CurrentHeight = height
		changed = true
	}

	for _, out := range cctx.OutboundParams {
		if out.Hash == "" {
			continue
		}
		set(&progress.OutboundHash, out.Hash)
		set(&progress.Receiver, out.Receiver)
		set(&progress.GasPrice, out.GasPrice)
		if out.GasUsed != 0 && progress.GasUsed != out.GasUsed {
			progress.GasUsed = out.GasUsed
			changed = true
		}
		break
	}

	return changed
}

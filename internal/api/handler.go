// Package api exposes custody and transfer operations over a local HTTP API.
// The daemon binds loopback; this surface is for the companion app on the
// same device, not the network.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/omnivault/omnivault/internal/custody"
	"github.com/omnivault/omnivault/internal/obfuscate"
	"github.com/omnivault/omnivault/internal/tracker"
	"github.com/omnivault/omnivault/internal/transfer"
	"github.com/omnivault/omnivault/pkg/models"
)

// Handler serves the REST API backed by the custody coordinator, the
// transfer orchestrator, and the tracker.
type Handler struct {
	coordinator   *custody.Coordinator
	orchestrator  *transfer.Orchestrator
	tracker       *tracker.Tracker
	trackTimeout  time.Duration
	unlockTimeout time.Duration
	logger        *slog.Logger

	mu       sync.Mutex
	sessions map[string]models.CctxProgress // keyed by inbound tx hash
}

func NewHandler(coordinator *custody.Coordinator, orchestrator *transfer.Orchestrator, trk *tracker.Tracker, trackTimeout, unlockTimeout time.Duration) *Handler {
	return &Handler{
		coordinator:   coordinator,
		orchestrator:  orchestrator,
		tracker:       trk,
		trackTimeout:  trackTimeout,
		unlockTimeout: unlockTimeout,
		logger:        slog.Default().With("component", "api"),
		sessions:      make(map[string]models.CctxProgress),
	}
}

// NewServeMux registers all routes.
func NewServeMux(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/custody/state", h.CustodyState)
	mux.HandleFunc("POST /api/v1/custody/setup", h.SetupWallet)
	mux.HandleFunc("POST /api/v1/custody/migrate", h.Migrate)
	mux.HandleFunc("POST /api/v1/custody/rotate", h.Rotate)
	mux.HandleFunc("POST /api/v1/custody/envelope", h.IssueEnvelope)
	mux.HandleFunc("DELETE /api/v1/custody", h.Reset)
	mux.HandleFunc("POST /api/v1/transfers", h.SubmitTransfer)
	mux.HandleFunc("GET /api/v1/transfers/{hash}", h.TransferProgress)

	return mux
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CustodyState reports the lifecycle state and migration status. Probing it
// never triggers a biometric ceremony.
func (h *Handler) CustodyState(w http.ResponseWriter, r *http.Request) {
	state, err := h.coordinator.State(r.Context())
	if err != nil {
		h.writeCustodyError(w, "read custody state", err)
		return
	}
	status, err := h.coordinator.GetMigrationStatus(r.Context())
	if err != nil {
		h.writeCustodyError(w, "read migration status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":           state,
		"has_unencrypted": status.HasUnencrypted,
		"has_encrypted":   status.HasEncrypted,
	})
}

type setupRequest struct {
	Phrase string `json:"phrase"`
}

func (h *Handler) SetupWallet(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.coordinator.SetupWallet(r.Context(), req.Phrase); err != nil {
		h.writeCustodyError(w, "wallet setup", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Migrate(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.MigrateLocalStorageToBiometric(r.Context()); err != nil {
		h.writeCustodyError(w, "migration", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Rotate(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.RotateCredential(r.Context()); err != nil {
		h.writeCustodyError(w, "credential rotation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Reset(r.Context()); err != nil {
		h.writeCustodyError(w, "reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type envelopeRequest struct {
	Context models.TransferContext `json:"context"`
}

type envelopeResponse struct {
	Envelope string `json:"envelope"` // base64 CBOR
}

// IssueEnvelope runs the unlock ceremony and returns the phrase sealed into
// an envelope bound to the submitted transfer intent. The plaintext phrase
// is never part of any response.
func (h *Handler) IssueEnvelope(w http.ResponseWriter, r *http.Request) {
	var req envelopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	envelope, err := h.coordinator.IssueTransferEnvelope(r.Context(), req.Context, h.unlockTimeout)
	if err != nil {
		h.writeCustodyError(w, "issue envelope", err)
		return
	}
	data, err := obfuscate.Marshal(envelope)
	if err != nil {
		h.writeCustodyError(w, "encode envelope", err)
		return
	}
	writeJSON(w, http.StatusOK, envelopeResponse{Envelope: base64.StdEncoding.EncodeToString(data)})
}

type transferRequest struct {
	OriginChain models.Chain           `json:"origin_chain"`
	TargetAsset string                 `json:"target_asset"`
	Withdraw    bool                   `json:"withdraw"`
	Context     models.TransferContext `json:"context"`
	Envelope    string                 `json:"envelope"` // base64 CBOR
}

type transferResponse struct {
	TxHash        string              `json:"tx_hash"`
	TransferType  models.TransferType `json:"transfer_type"`
	SignerAddress string              `json:"signer_address"`
	Attempts      int                 `json:"attempts"`
}

// SubmitTransfer performs a cross-chain transfer and starts a background
// tracking session for the returned inbound hash.
func (h *Handler) SubmitTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Envelope)
	if err != nil {
		writeError(w, http.StatusBadRequest, "envelope is not valid base64")
		return
	}
	envelope, err := obfuscate.Unmarshal(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed envelope")
		return
	}

	result, err := h.orchestrator.PerformCrossChainTransfer(r.Context(), transfer.Params{
		Context:     req.Context,
		OriginChain: req.OriginChain,
		TargetAsset: req.TargetAsset,
		Withdraw:    req.Withdraw,
		Envelope:    envelope,
	})
	if err != nil {
		h.writeTransferError(w, err)
		return
	}

	h.startTracking(result.TxHash)

	writeJSON(w, http.StatusAccepted, transferResponse{
		TxHash:        result.TxHash,
		TransferType:  result.TransferType,
		SignerAddress: result.SignerAddress,
		Attempts:      result.Attempts,
	})
}

// TransferProgress returns the latest tracking snapshot for an inbound hash.
func (h *Handler) TransferProgress(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")

	h.mu.Lock()
	progress, ok := h.sessions[hash]
	h.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "no tracking session for hash")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// startTracking runs a tracking session detached from the request context
// and folds every snapshot into the sessions map.
func (h *Handler) startTracking(txHash string) {
	h.mu.Lock()
	h.sessions[txHash] = models.CctxProgress{
		InboundHash: txHash,
		Status:      models.StatusPending,
		UpdatedAt:   time.Now(),
	}
	h.mu.Unlock()

	go func() {
		record := func(p models.CctxProgress) {
			h.mu.Lock()
			h.sessions[txHash] = p
			h.mu.Unlock()
		}

		final, err := h.tracker.Track(context.Background(), txHash, h.trackTimeout, record)
		if err != nil {
			h.logger.Error("tracking session failed", "tx_hash", txHash, "error", err)
			h.mu.Lock()
			p := h.sessions[txHash]
			p.Status = models.StatusError
			p.UpdatedAt = time.Now()
			h.sessions[txHash] = p
			h.mu.Unlock()
			return
		}
		record(*final)
	}()
}

func (h *Handler) writeCustodyError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "error", err)

	switch {
	case errors.Is(err, models.ErrInvalidPhrase):
		writeError(w, http.StatusBadRequest, "invalid recovery phrase")
	case errors.Is(err, models.ErrNoWallet):
		writeError(w, http.StatusNotFound, "no wallet configured")
	case errors.Is(err, models.ErrRegistrationDenied), errors.Is(err, models.ErrAuthenticationDenied):
		writeError(w, http.StatusForbidden, "biometric ceremony denied")
	case errors.Is(err, models.ErrUnsupportedPlatform):
		writeError(w, http.StatusNotImplemented, "platform authenticator unavailable")
	default:
		var unlockErr *models.UnlockError
		if errors.As(err, &unlockErr) {
			switch unlockErr.Reason {
			case models.UnlockNoWallet:
				writeError(w, http.StatusNotFound, "no wallet configured")
				return
			case models.UnlockDenied:
				writeError(w, http.StatusForbidden, "biometric ceremony denied")
				return
			}
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeTransferError(w http.ResponseWriter, err error) {
	h.logger.Error("transfer failed", "error", err)

	switch {
	case errors.Is(err, models.ErrSecretRecovery):
		writeError(w, http.StatusUnprocessableEntity, "envelope does not match transfer context")
	case errors.Is(err, transfer.ErrRetriesExhausted):
		writeError(w, http.StatusBadGateway, "transfer failed, please try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

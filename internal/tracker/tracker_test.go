package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/omnivault/omnivault/pkg/models"
)

// fakeIndexer replays a scripted sequence of responses; the last step
// repeats once the script is exhausted.
type fakeIndexer struct {
	mu     sync.Mutex
	steps  []indexStep
	idx    int
	height uint64
	calls  int
}

type indexStep struct {
	txs []CrossChainTx
	err error
}

func (f *fakeIndexer) CctxByInboundHash(_ context.Context, _ string) ([]CrossChainTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.steps) == 0 {
		return nil, nil
	}
	step := f.steps[f.idx]
	if f.idx < len(f.steps)-1 {
		f.idx++
	}
	return step.txs, step.err
}

func (f *fakeIndexer) FinalizedHeight(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, nil
}

func newTestTracker(idx Indexer) *Tracker {
	return New(idx, 2*time.Millisecond)
}

func pendingCctx() CrossChainTx {
	return CrossChainTx{
		Index:      "0xcctx01",
		CctxStatus: CctxStatus{Status: RemotePendingInbound},
		InboundParams: InboundParams{
			ObservedHash: "0xinbound",
			Sender:       "0xsender",
			Amount:       "1500000",
			Asset:        "usdc",
		},
	}
}

func confirmedCctx() CrossChainTx {
	c := pendingCctx()
	c.CctxStatus.Status = RemotePendingOutbound
	c.InboundParams.TxFinalizationStatus = FinalizationExecuted
	c.InboundParams.FinalizedZetaHeight = 100
	return c
}

func broadcastedCctx() CrossChainTx {
	c := confirmedCctx()
	c.OutboundParams = []OutboundParams{{
		Hash:     "0xoutbound",
		Receiver: "0xreceiver",
		GasUsed:  21000,
		GasPrice: "30",
	}}
	return c
}

func minedCctx() CrossChainTx {
	c := broadcastedCctx()
	c.CctxStatus.Status = RemoteOutboundMined
	return c
}

func TestTrack_ProgressesToCompleted(t *testing.T) {
	idx := &fakeIndexer{
		height: 112,
		steps: []indexStep{
			{txs: nil},
			{txs: []CrossChainTx{pendingCctx()}},
			{txs: []CrossChainTx{confirmedCctx()}},
			{txs: []CrossChainTx{broadcastedCctx()}},
			{txs: []CrossChainTx{minedCctx()}},
		},
	}

	var seen []models.TrackingStatus
	progress, err := newTestTracker(idx).Track(context.Background(), "0xinbound", time.Second, func(p models.CctxProgress) {
		seen = append(seen, p.Status)
	})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}

	if progress.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want %s", progress.Status, models.StatusCompleted)
	}
	if progress.OutboundHash != "0xoutbound" {
		t.Errorf("outbound hash = %q, want 0xoutbound", progress.OutboundHash)
	}
	if progress.Confirmations != 12 {
		t.Errorf("confirmations = %d, want 12", progress.Confirmations)
	}
	if progress.Amount == nil || progress.Amount.String() != "1500000" {
		t.Errorf("amount = %v, want 1500000", progress.Amount)
	}
	if progress.GasUsed != 21000 || progress.Receiver != "0xreceiver" {
		t.Errorf("outbound details not captured: %+v", progress)
	}
	if progress.SessionID == "" {
		t.Error("session ID not assigned")
	}

	// Callback statuses must only move forward.
	last := models.StatusPending
	for _, s := range seen {
		if last.Advances(s) {
			last = s
			continue
		}
		if s != last {
			t.Fatalf("status moved backward: %v", seen)
		}
	}
	if last != models.StatusCompleted {
		t.Fatalf("final callback status = %s, want completed (all: %v)", last, seen)
	}
}

func TestTrack_NeverMovesBackward(t *testing.T) {
	// The indexer momentarily "forgets" the outbound leg; the session
	// must hold its furthest status rather than regress.
	regressed := confirmedCctx()
	idx := &fakeIndexer{
		height: 105,
		steps: []indexStep{
			{txs: []CrossChainTx{broadcastedCctx()}},
			{txs: []CrossChainTx{regressed}},
			{txs: []CrossChainTx{regressed}},
			{txs: []CrossChainTx{minedCctx()}},
		},
	}

	var seen []models.TrackingStatus
	progress, err := newTestTracker(idx).Track(context.Background(), "0xinbound", time.Second, func(p models.CctxProgress) {
		seen = append(seen, p.Status)
	})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if progress.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", progress.Status)
	}
	for _, s := range seen {
		if s == models.StatusPending || s == models.StatusInboundConfirmed {
			t.Fatalf("regressed to %s after broadcast: %v", s, seen)
		}
	}
}

func TestTrack_Timeout(t *testing.T) {
	idx := &fakeIndexer{} // indexer never sees the hash

	progress, err := newTestTracker(idx).Track(context.Background(), "0xunknown", 25*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if progress.Status != models.StatusTimeout {
		t.Fatalf("status = %s, want %s", progress.Status, models.StatusTimeout)
	}
	if progress.Confirmations != 0 {
		t.Errorf("confirmations = %d, want 0", progress.Confirmations)
	}
}

func TestTrack_SurvivesCycleErrors(t *testing.T) {
	idx := &fakeIndexer{
		height: 101,
		steps: []indexStep{
			{err: errors.New("indexer unavailable")},
			{err: errors.New("indexer unavailable")},
			{txs: []CrossChainTx{minedCctx()}},
		},
	}

	progress, err := newTestTracker(idx).Track(context.Background(), "0xinbound", time.Second, nil)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if progress.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed after transient errors", progress.Status)
	}
	if idx.calls < 3 {
		t.Errorf("indexer polled %d times, want at least 3", idx.calls)
	}
}

func TestTrack_AbortedEndsFailed(t *testing.T) {
	aborted := pendingCctx()
	aborted.CctxStatus = CctxStatus{Status: RemoteAborted, StatusMessage: "outbound reverted on target chain"}

	idx := &fakeIndexer{steps: []indexStep{{txs: []CrossChainTx{aborted}}}}

	progress, err := newTestTracker(idx).Track(context.Background(), "0xinbound", time.Second, nil)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if progress.Status != models.StatusFailed {
		t.Fatalf("status = %s, want %s", progress.Status, models.StatusFailed)
	}
	if progress.ErrorMessage == "" {
		t.Error("status message not captured")
	}
}

func TestTrack_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx := &fakeIndexer{}
	if _, err := newTestTracker(idx).Track(ctx, "0xinbound", time.Second, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		cctx CrossChainTx
		want models.TrackingStatus
	}{
		{"fresh", pendingCctx(), models.StatusPending},
		{"inbound finalized", confirmedCctx(), models.StatusInboundConfirmed},
		{"outbound broadcast", broadcastedCctx(), models.StatusOutboundBroadcasted},
		{"mined", minedCctx(), models.StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusOf(tt.cctx); got != tt.want {
				t.Errorf("statusOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConfirmations(t *testing.T) {
	c := confirmedCctx() // inbound finalized at 100
	if got := confirmations(c, 107); got != 7 {
		t.Errorf("confirmations = %d, want 7", got)
	}
	if got := confirmations(c, 95); got != 0 {
		t.Errorf("height behind inbound: confirmations = %d, want 0", got)
	}
	if got := confirmations(pendingCctx(), 107); got != 0 {
		t.Errorf("no inbound height: confirmations = %d, want 0", got)
	}
}

func TestClient_CctxByInboundHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cross-chain/inboundHashToCctxData/0xknown":
			w.Write([]byte(`{"CrossChainTxs":[{"index":"0xcctx01","cctxStatus":{"status":"OutboundMined"},"inboundParams":{"finalizedZetaHeight":100},"outboundParams":[{"hash":"0xout"}]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	txs, err := client.CctxByInboundHash(context.Background(), "0xknown")
	if err != nil {
		t.Fatalf("CctxByInboundHash: %v", err)
	}
	if len(txs) != 1 || txs[0].CctxStatus.Status != RemoteOutboundMined {
		t.Fatalf("unexpected response: %+v", txs)
	}
	if txs[0].OutboundParams[0].Hash != "0xout" {
		t.Errorf("outbound hash = %q", txs[0].OutboundParams[0].Hash)
	}

	// Unknown hash is absence, not an error.
	txs, err = client.CctxByInboundHash(context.Background(), "0xmissing")
	if err != nil {
		t.Fatalf("unknown hash: %v", err)
	}
	if txs != nil {
		t.Errorf("unknown hash returned %+v, want nil", txs)
	}
}

func TestClient_FinalizedHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/observer/TSS" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"TSS":{"finalizedZetaHeight":424242}}`))
	}))
	defer srv.Close()

	height, err := NewClient(srv.URL).FinalizedHeight(context.Background())
	if err != nil {
		t.Fatalf("FinalizedHeight: %v", err)
	}
	if height != 424242 {
		t.Errorf("height = %d, want 424242", height)
	}
}

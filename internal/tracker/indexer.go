package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Base URLs for the remote indexer, selected by deployment network.
const (
	ProductionIndexerURL = "https://indexer.mainnet.omniwallet.dev"
	StagingIndexerURL    = "https://indexer.athens.omniwallet.dev"
)

// Remote CCTX statuses reported by the indexer.
const (
	RemoteOutboundMined   = "OutboundMined"
	RemoteAborted         = "Aborted"
	RemoteReverted        = "Reverted"
	RemotePendingInbound  = "PendingInbound"
	RemotePendingOutbound = "PendingOutbound"
)

// FinalizationExecuted is the finalization flag value for an executed leg.
const FinalizationExecuted = "Executed"

// CctxStatus is the remote status block of a cross-chain transaction.
type CctxStatus struct {
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage"`
}

// InboundParams describes the source-chain leg.
type InboundParams struct {
	ObservedHash         string `json:"observedHash"`
	Sender               string `json:"sender"`
	Amount               string `json:"amount"`
	Asset                string `json:"asset"`
	FinalizedZetaHeight  uint64 `json:"finalizedZetaHeight"`
	TxFinalizationStatus string `json:"txFinalizationStatus"`
}

// OutboundParams describes a destination-chain leg.
type OutboundParams struct {
	Hash                 string `json:"hash"`
	Receiver             string `json:"receiver"`
	Amount               string `json:"amount"`
	GasUsed              uint64 `json:"gasUsed"`
	GasPrice             string `json:"gasPrice"`
	TxFinalizationStatus string `json:"txFinalizationStatus"`
}

// CrossChainTx is one indexed cross-chain transaction.
type CrossChainTx struct {
	Index          string           `json:"index"`
	CctxStatus     CctxStatus       `json:"cctxStatus"`
	InboundParams  InboundParams    `json:"inboundParams"`
	OutboundParams []OutboundParams `json:"outboundParams"`
}

type cctxDataResponse struct {
	CrossChainTxs []CrossChainTx `json:"CrossChainTxs"`
}

type tssResponse struct {
	TSS struct {
		FinalizedZetaHeight uint64 `json:"finalizedZetaHeight"`
	} `json:"TSS"`
}

// Indexer is the remote API a tracking session polls.
type Indexer interface {
	// CctxByInboundHash returns the cross-chain transactions observed for an
	// inbound hash. An empty slice means the indexer has not seen it yet.
	CctxByInboundHash(ctx context.Context, hash string) ([]CrossChainTx, error)

	// FinalizedHeight returns the indexer's current finalized height.
	FinalizedHeight(ctx context.Context) (uint64, error)
}

// Client is the HTTP Indexer implementation.
type Client struct {
	baseURL string
	httpc   *http.Client
}

var _ Indexer = (*Client)(nil)

// NewClient returns an indexer client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// CctxByInboundHash fetches /cross-chain/inboundHashToCctxData/{hash}.
// A 404 means the hash has not been indexed yet and is not an error.
func (c *Client) CctxByInboundHash(ctx context.Context, hash string) ([]CrossChainTx, error) {
	endpoint := fmt.Sprintf("%s/cross-chain/inboundHashToCctxData/%s", c.baseURL, url.PathEscape(hash))

	var resp cctxDataResponse
	found, err := c.getJSON(ctx, endpoint, &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return resp.CrossChainTxs, nil
}

// FinalizedHeight fetches /observer/TSS.
func (c *Client) FinalizedHeight(ctx context.Context) (uint64, error) {
	var resp tssResponse
	if _, err := c.getJSON(ctx, c.baseURL+"/observer/TSS", &resp); err != nil {
		return 0, err
	}
	return resp.TSS.FinalizedZetaHeight, nil
}

// getJSON performs a GET and decodes the body. Returns found=false on 404.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		return false, fmt.Errorf("indexer request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.StatusCode != http.StatusOK {
		return false, fmt.Errorf("indexer returned %s", res.Status)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode indexer response: %w", err)
	}
	return true, nil
}

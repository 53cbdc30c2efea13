package models

import (
	"math/big"
	"time"
)

// Chain identifies a blockchain network a transfer can originate on or target.
type Chain string

// Supported chains.
const (
	ChainZeta    Chain = "ZETA"
	ChainETH     Chain = "ETH"
	ChainBSC     Chain = "BSC"
	ChainPolygon Chain = "POLYGON"
	ChainBitcoin Chain = "BTC"
	ChainSolana  Chain = "SOL"
)

// ChainFamily groups chains by recipient encoding rules.
type ChainFamily string

const (
	FamilyEVM     ChainFamily = "evm"
	FamilyBitcoin ChainFamily = "bitcoin"
	FamilySolana  ChainFamily = "solana"
)

// Family returns the ledger family the chain belongs to. The family decides
// how a recipient address is encoded into the protocol payload: EVM recipients
// travel as raw hex bytes, everything else as the UTF-8 address string.
func (c Chain) Family() ChainFamily {
	switch c {
	case ChainBitcoin:
		return FamilyBitcoin
	case ChainSolana:
		return FamilySolana
	default:
		return FamilyEVM
	}
}

// TransferType classifies a requested transfer by the relationship between
// its origin chain, target chain, and tokens.
type TransferType string

const (
	DirectTransfer TransferType = "DIRECT_TRANSFER"
	CrossChainSwap TransferType = "CROSS_CHAIN_SWAP"
	SameChainSwap  TransferType = "SAME_CHAIN_SWAP"
)

// SecuredWalletID is the fixed record key for the single per-installation wallet.
const SecuredWalletID = "secured-wallet"

// SecuredWallet is the at-rest form of the recovery phrase. The plaintext
// phrase is never persisted; only the GCM ciphertext and the wrapped master
// key exist on disk.
type SecuredWallet struct {
	ID                string    `json:"id"`
	CredentialID      string    `json:"credential_id"`
	WrappedMasterKey  []byte    `json:"wrapped_master_key"`
	MnemonicIV        []byte    `json:"mnemonic_iv"`
	EncryptedMnemonic []byte    `json:"encrypted_mnemonic"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BiometricCredential is a registered platform-bound keypair plus metadata.
// Only the public half is ever represented as data; the private half lives
// behind the authenticator and is reachable only as a capability.
type BiometricCredential struct {
	ID         string    `json:"id"`
	PublicKey  []byte    `json:"public_key"` // CBOR-encoded, base64-carried on the wire
	Counter    uint32    `json:"counter"`
	DeviceType string    `json:"device_type"`
	BackedUp   bool      `json:"backed_up"`
	Transports []string  `json:"transports"`
	CreatedAt  time.Time `json:"created_at"`
}

// TransferContext is the five-field transfer intent an obfuscated secret is
// bound to. A bundle decodes only for a party computing the same context.
type TransferContext struct {
	TokenSymbol string `json:"token_symbol"`
	Amount      string `json:"amount"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	TargetChain Chain  `json:"target_chain"`
}

// ObfuscatedSecret is the short-lived transport envelope carrying a decrypted
// phrase across a process boundary for a single transfer. Never persisted.
type ObfuscatedSecret struct {
	Ciphertext  []byte `cbor:"1,keyasint" json:"ciphertext"`
	IV          []byte `cbor:"2,keyasint" json:"iv"`
	Salt        []byte `cbor:"3,keyasint" json:"salt"`
	Nonce       string `cbor:"4,keyasint" json:"nonce"`
	KeyFragment string `cbor:"5,keyasint" json:"key_fragment"`
	Method      int    `cbor:"6,keyasint" json:"method"` // permutation selector, 0-6
}

// TrackingStatus is the client-visible progress state of a tracked CCTX.
type TrackingStatus string

const (
	StatusPending             TrackingStatus = "pending"
	StatusInboundConfirmed    TrackingStatus = "inbound_confirmed"
	StatusOutboundBroadcasted TrackingStatus = "outbound_broadcasted"
	StatusCompleted           TrackingStatus = "completed"
	StatusFailed              TrackingStatus = "failed"
	StatusError               TrackingStatus = "error"
	StatusTimeout             TrackingStatus = "timeout"
)

// Terminal reports whether the status ends a tracking session.
func (s TrackingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError, StatusTimeout:
		return true
	}
	return false
}

// rank orders statuses so progress never moves backward across poll cycles.
func (s TrackingStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInboundConfirmed:
		return 1
	case StatusOutboundBroadcasted:
		return 2
	default:
		return 3
	}
}

// Advances reports whether moving from s to next is forward progress.
func (s TrackingStatus) Advances(next TrackingStatus) bool {
	return next.rank() > s.rank()
}

// CctxProgress is the mutable tracking record for one cross-chain transaction.
// Created when a tracking session starts, updated on every poll cycle.
type CctxProgress struct {
	SessionID     string         `json:"session_id"`
	InboundHash   string         `json:"inbound_hash"`
	Status        TrackingStatus `json:"status"`
	Confirmations uint64         `json:"confirmations"`
	OutboundHash  string         `json:"outbound_hash,omitempty"`
	InboundHeight uint64         `json:"inbound_height,omitempty"`
	CurrentHeight uint64         `json:"current_height,omitempty"`
	Amount        *big.Int       `json:"amount,omitempty"`
	Asset         string         `json:"asset,omitempty"`
	Sender        string         `json:"sender,omitempty"`
	Receiver      string         `json:"receiver,omitempty"`
	GasUsed       uint64         `json:"gas_used,omitempty"`
	GasPrice      string         `json:"gas_price,omitempty"`
	ErrorMessage  string         `json:"-"` // captured internally, never echoed to users
	UpdatedAt     time.Time      `json:"updated_at"`
}

// MigrationStatus reports what forms of phrase storage exist on the device.
// Computed purely from store contents; probing it never triggers a ceremony.
type MigrationStatus struct {
	HasUnencrypted bool `json:"has_unencrypted"`
	HasEncrypted   bool `json:"has_encrypted"`
}

package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
)

const jsonRPCVersion = "2.0"

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// ListingResult is the JSON view of an escrow listing.
type ListingResult struct {
	AssetID          uint64   `json:"assetId"`
	IsListed         bool     `json:"isListed"`
	Seller           string   `json:"seller"`
	Buyer            string   `json:"buyer"`
	PurchasePrice    string   `json:"purchasePrice"`
	EscrowAmount     string   `json:"escrowAmount"`
	InspectionPassed bool     `json:"inspectionPassed"`
	Approvals        []string `json:"approvals"`
	Balance          string   `json:"balance"`
	Cycle            uint64   `json:"cycle"`
	ListedAt         uint64   `json:"listedAt"`
	ClosedAt         uint64   `json:"closedAt,omitempty"`
}

// EventResult is one entry of the persisted event log.
type EventResult struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// RolesResult lists the fixed escrow identities.
type RolesResult struct {
	Seller    string `json:"seller"`
	Inspector string `json:"inspector"`
	Lender    string `json:"lender"`
	Escrow    string `json:"escrow"`
	Registry  string `json:"registry"`
}

// DeedResult is the JSON view of a registry deed.
type DeedResult struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Approved string `json:"approved,omitempty"`
	URI      string `json:"uri"`
}

// MintResult carries the id assigned to a newly minted deed.
type MintResult struct {
	ID uint64 `json:"id"`
}

// BalanceResult reports the fund balance of an identity.
type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

package rpc

import (
	"context"
	"encoding/json"
	"strings"

	"deedescrow/crypto"
	"deedescrow/native/escrow"
)

type escrowListParams struct {
	AssetID       uint64 `json:"assetId"`
	Buyer         string `json:"buyer"`
	PurchasePrice string `json:"purchasePrice"`
	EscrowAmount  string `json:"escrowAmount"`
}

type escrowAssetParams struct {
	AssetID uint64 `json:"assetId"`
}

type escrowFundParams struct {
	AssetID uint64 `json:"assetId"`
	Amount  string `json:"amount"`
}

type escrowInspectParams struct {
	AssetID uint64 `json:"assetId"`
	Passed  bool   `json:"passed"`
}

type escrowApprovalParams struct {
	AssetID  uint64 `json:"assetId"`
	Identity string `json:"identity"`
}

type escrowEventsParams struct {
	AssetID uint64 `json:"assetId,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type okResult struct {
	OK bool `json:"ok"`
}

func (s *Server) escrowList(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowListParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	buyer, err := parseIdentityParam("buyer", params.Buyer)
	if err != nil {
		return nil, err
	}
	price, err := parseAmountParam("purchasePrice", params.PurchasePrice)
	if err != nil {
		return nil, err
	}
	earnest, err := parseAmountParam("escrowAmount", params.EscrowAmount)
	if err != nil {
		return nil, err
	}
	if err := s.node.Escrow().List(caller, params.AssetID, buyer, price, earnest); err != nil {
		return nil, err
	}
	return s.listingResult(params.AssetID)
}

func (s *Server) escrowDepositEarnest(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowFundParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	amount, err := parseAmountParam("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.Escrow().DepositEarnest(caller, params.AssetID, amount); err != nil {
		return nil, err
	}
	return s.listingResult(params.AssetID)
}

func (s *Server) escrowContribute(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowFundParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	amount, err := parseAmountParam("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.Escrow().Contribute(caller, params.AssetID, amount); err != nil {
		return nil, err
	}
	return s.listingResult(params.AssetID)
}

func (s *Server) escrowUpdateInspectionStatus(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowInspectParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.node.Escrow().UpdateInspectionStatus(caller, params.AssetID, params.Passed); err != nil {
		return nil, err
	}
	return s.listingResult(params.AssetID)
}

func (s *Server) escrowApproveSale(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowAssetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.node.Escrow().ApproveSale(caller, params.AssetID); err != nil {
		return nil, err
	}
	return s.listingResult(params.AssetID)
}

func (s *Server) escrowFinalizeSale(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowAssetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.node.Escrow().FinalizeSale(caller, params.AssetID); err != nil {
		return nil, err
	}
	return s.listingResult(params.AssetID)
}

func (s *Server) escrowCancelSale(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowAssetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.node.Escrow().CancelSale(caller, params.AssetID); err != nil {
		return nil, err
	}
	return s.listingResult(params.AssetID)
}

func (s *Server) escrowIsListed(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowAssetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.node.Escrow().IsListed(params.AssetID)
}

func (s *Server) escrowBuyer(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowAssetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	buyer, err := s.node.Escrow().Buyer(params.AssetID)
	if err != nil {
		return nil, err
	}
	if buyer == ([20]byte{}) {
		return "", nil
	}
	return crypto.FormatIdentity(buyer), nil
}

func (s *Server) escrowPurchasePrice(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowAssetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	price, err := s.node.Escrow().PurchasePrice(params.AssetID)
	if err != nil {
		return nil, err
	}
	return amountString(price), nil
}

func (s *Server) escrowEscrowAmount(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowAssetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	amount, err := s.node.Escrow().EscrowAmount(params.AssetID)
	if err != nil {
		return nil, err
	}
	return amountString(amount), nil
}

func (s *Server) escrowInspectionPassed(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowAssetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.node.Escrow().InspectionPassed(params.AssetID)
}

func (s *Server) escrowApproval(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowApprovalParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	identity, err := parseIdentityParam("identity", params.Identity)
	if err != nil {
		return nil, err
	}
	return s.node.Escrow().Approval(params.AssetID, identity)
}

func (s *Server) escrowGetBalance(_ context.Context, _ [20]byte, _ json.RawMessage) (interface{}, error) {
	balance, err := s.node.Escrow().GetBalance()
	if err != nil {
		return nil, err
	}
	return amountString(balance), nil
}

func (s *Server) escrowGetListing(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowAssetParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.listingResult(params.AssetID)
}

func (s *Server) escrowListEvents(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params escrowEventsParams
	if len(raw) > 0 {
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
	}
	logged, err := s.node.Events(params.AssetID)
	if err != nil {
		return nil, err
	}
	results := make([]EventResult, 0, len(logged))
	for _, entry := range logged {
		if params.Prefix != "" && !strings.HasPrefix(entry.Event.Type, params.Prefix) {
			continue
		}
		attrs := make(map[string]string, len(entry.Event.Attributes))
		for k, v := range entry.Event.Attributes {
			attrs[k] = v
		}
		results = append(results, EventResult{Sequence: entry.Sequence, Type: entry.Event.Type, Attributes: attrs})
	}
	if params.Limit > 0 && params.Limit < len(results) {
		results = results[len(results)-params.Limit:]
	}
	return results, nil
}

func (s *Server) escrowRoles(_ context.Context, _ [20]byte, _ json.RawMessage) (interface{}, error) {
	roles := s.node.Escrow().Roles()
	return RolesResult{
		Seller:    crypto.FormatIdentity(roles.Seller),
		Inspector: crypto.FormatIdentity(roles.Inspector),
		Lender:    crypto.FormatIdentity(roles.Lender),
		Escrow:    crypto.FormatIdentity(s.node.EscrowAddress()),
		Registry:  crypto.FormatIdentity(s.node.RegistryAddress()),
	}, nil
}

func (s *Server) listingResult(assetID uint64) (*ListingResult, error) {
	listing, err := s.node.Escrow().Listing(assetID)
	if err != nil {
		return nil, err
	}
	return formatListing(listing), nil
}

func formatListing(l *escrow.Listing) *ListingResult {
	approvals := make([]string, 0, len(l.Approvals))
	for _, who := range l.Approvals {
		approvals = append(approvals, crypto.FormatIdentity(who))
	}
	return &ListingResult{
		AssetID:          l.AssetID,
		IsListed:         l.IsListed,
		Seller:           crypto.FormatIdentity(l.Seller),
		Buyer:            crypto.FormatIdentity(l.Buyer),
		PurchasePrice:    amountString(l.PurchasePrice),
		EscrowAmount:     amountString(l.EscrowAmount),
		InspectionPassed: l.InspectionPassed,
		Approvals:        approvals,
		Balance:          amountString(l.Balance),
		Cycle:            l.Cycle,
		ListedAt:         l.ListedAt,
		ClosedAt:         l.ClosedAt,
	}
}

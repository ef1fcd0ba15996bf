package rpc

import (
	"context"
	"encoding/json"

	"deedescrow/crypto"
)

type registryMintParams struct {
	URI string `json:"uri"`
}

type registryApproveParams struct {
	Operator string `json:"operator"`
	ID       uint64 `json:"id"`
}

type registryTransferParams struct {
	From string `json:"from"`
	To   string `json:"to"`
	ID   uint64 `json:"id"`
}

type registryIDParams struct {
	ID uint64 `json:"id"`
}

type addressParams struct {
	Address string `json:"address"`
}

func (s *Server) registryMint(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params registryMintParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	id, err := s.node.MintDeed(caller, params.URI)
	if err != nil {
		return nil, err
	}
	return MintResult{ID: id}, nil
}

func (s *Server) registryApprove(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params registryApproveParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	operator, err := parseIdentityParam("operator", params.Operator)
	if err != nil {
		return nil, err
	}
	if err := s.node.ApproveDeed(caller, operator, params.ID); err != nil {
		return nil, err
	}
	return okResult{OK: true}, nil
}

func (s *Server) registryTransferFrom(_ context.Context, caller [20]byte, raw json.RawMessage) (interface{}, error) {
	var params registryTransferParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	from, err := parseIdentityParam("from", params.From)
	if err != nil {
		return nil, err
	}
	to, err := parseIdentityParam("to", params.To)
	if err != nil {
		return nil, err
	}
	if err := s.node.TransferDeed(caller, from, to, params.ID); err != nil {
		return nil, err
	}
	return okResult{OK: true}, nil
}

func (s *Server) registryOwnerOf(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params registryIDParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	owner, err := s.node.OwnerOf(params.ID)
	if err != nil {
		return nil, err
	}
	return crypto.FormatIdentity(owner), nil
}

func (s *Server) registryTokenURI(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params registryIDParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return s.node.TokenURI(params.ID)
}

func (s *Server) registryGetDeed(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params registryIDParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	deed, err := s.node.Deed(params.ID)
	if err != nil {
		return nil, err
	}
	result := DeedResult{ID: deed.ID, Owner: crypto.FormatIdentity(deed.Owner), URI: deed.URI}
	if deed.Approved != ([20]byte{}) {
		result.Approved = crypto.FormatIdentity(deed.Approved)
	}
	return result, nil
}

func (s *Server) bankBalance(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	addr, err := parseIdentityParam("address", params.Address)
	if err != nil {
		return nil, err
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return nil, err
	}
	return BalanceResult{Address: crypto.FormatIdentity(addr), Balance: amountString(balance)}, nil
}

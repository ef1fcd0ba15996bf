package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"deedescrow/crypto"
)

type adminCreditParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type adminPauseParams struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type adminBlockParams struct {
	Address string `json:"address"`
	Blocked bool   `json:"blocked"`
}

type adminAuditParams struct {
	Limit int `json:"limit,omitempty"`
}

type auditLister interface {
	Recent(ctx context.Context, limit int) ([]AuditRecord, error)
}

func (s *Server) adminCredit(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params adminCreditParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	addr, err := parseIdentityParam("address", params.Address)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmountParam("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.node.Credit(addr, amount); err != nil {
		return nil, err
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return nil, err
	}
	return BalanceResult{Address: crypto.FormatIdentity(addr), Balance: amountString(balance)}, nil
}

func (s *Server) adminSetPaused(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params adminPauseParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.node.SetPaused(params.Module, params.Paused); err != nil {
		return nil, err
	}
	return okResult{OK: true}, nil
}

func (s *Server) adminSetReceiveBlocked(_ context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params adminBlockParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	addr, err := parseIdentityParam("address", params.Address)
	if err != nil {
		return nil, err
	}
	if err := s.node.SetReceiveBlocked(addr, params.Blocked); err != nil {
		return nil, err
	}
	return okResult{OK: true}, nil
}

func (s *Server) adminAuditLog(ctx context.Context, _ [20]byte, raw json.RawMessage) (interface{}, error) {
	var params adminAuditParams
	if len(raw) > 0 {
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
	}
	lister, ok := s.audit.(auditLister)
	if !ok {
		return nil, &ModuleError{HTTPStatus: http.StatusNotFound, Code: codeServerError, Message: "audit log disabled"}
	}
	return lister.Recent(ctx, params.Limit)
}

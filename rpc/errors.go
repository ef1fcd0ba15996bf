package rpc

import (
	"errors"
	"net/http"

	"deedescrow/core"
	"deedescrow/native/bank"
	nativecommon "deedescrow/native/common"
	"deedescrow/native/escrow"
	"deedescrow/native/registry"
)

const (
	codeParseError      = -32700
	codeInvalidRequest  = -32600
	codeMethodNotFound  = -32601
	codeInvalidParams   = -32602
	codeServerError     = -32000
	codeUnauthenticated = -32001
	codeForbidden       = -32003
	codeRateLimited     = -32020
)

// Escrow error kinds each carry a distinct code.
const (
	codeEscrowUnauthorized        = -32021
	codeEscrowUnknownListing      = -32022
	codeEscrowTransferRejected    = -32023
	codeEscrowInspectionNotPassed = -32024
	codeEscrowApprovalIncomplete  = -32025
	codeEscrowInsufficientFunds   = -32026
	codeEscrowListingActive       = -32027
	codeEscrowInvalidAmount       = -32028
	codeEscrowInvalidBuyer        = -32029
	codeEscrowPayoutRejected      = -32030
	codeModulePaused              = -32031
)

const (
	codeRegistryNotOwner         = -32041
	codeRegistryNotApproved      = -32042
	codeRegistryUnknownDeed      = -32043
	codeRegistryInvalidRecipient = -32044
	codeRegistryEmptyURI         = -32045
	codeBankInsufficientBalance  = -32051
	codeBankReceiveBlocked       = -32052
	codeBankNegativeAmount       = -32053
	codeModuleAccount            = -32054
)

type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidParams(message string, data interface{}) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message, Data: data}
}

var escrowStatuses = map[string]struct {
	status int
	code   int
}{
	"Unauthorized":        {http.StatusForbidden, codeEscrowUnauthorized},
	"UnknownListing":      {http.StatusNotFound, codeEscrowUnknownListing},
	"TransferRejected":    {http.StatusConflict, codeEscrowTransferRejected},
	"InspectionNotPassed": {http.StatusConflict, codeEscrowInspectionNotPassed},
	"ApprovalIncomplete":  {http.StatusConflict, codeEscrowApprovalIncomplete},
	"InsufficientFunds":   {http.StatusUnprocessableEntity, codeEscrowInsufficientFunds},
	"ListingActive":       {http.StatusConflict, codeEscrowListingActive},
	"InvalidAmount":       {http.StatusUnprocessableEntity, codeEscrowInvalidAmount},
	"InvalidBuyer":        {http.StatusUnprocessableEntity, codeEscrowInvalidBuyer},
	"PayoutRejected":      {http.StatusConflict, codeEscrowPayoutRejected},
	"ModulePaused":        {http.StatusServiceUnavailable, codeModulePaused},
}

var otherErrors = []struct {
	err     error
	status  int
	code    int
	message string
}{
	{registry.ErrNotOwner, http.StatusForbidden, codeRegistryNotOwner, "NotOwner"},
	{registry.ErrNotApproved, http.StatusForbidden, codeRegistryNotApproved, "NotApproved"},
	{registry.ErrUnknownDeed, http.StatusNotFound, codeRegistryUnknownDeed, "UnknownDeed"},
	{registry.ErrInvalidRecipient, http.StatusUnprocessableEntity, codeRegistryInvalidRecipient, "InvalidRecipient"},
	{registry.ErrEmptyURI, http.StatusUnprocessableEntity, codeRegistryEmptyURI, "EmptyURI"},
	{bank.ErrInsufficientBalance, http.StatusUnprocessableEntity, codeBankInsufficientBalance, "InsufficientBalance"},
	{bank.ErrReceiveBlocked, http.StatusConflict, codeBankReceiveBlocked, "ReceiveBlocked"},
	{bank.ErrNegativeAmount, http.StatusUnprocessableEntity, codeBankNegativeAmount, "InvalidAmount"},
	{core.ErrModuleAccount, http.StatusUnprocessableEntity, codeModuleAccount, "ModuleAccount"},
	{core.ErrUnknownModule, http.StatusBadRequest, codeInvalidParams, "UnknownModule"},
	{core.ErrInvalidIdentity, http.StatusBadRequest, codeInvalidParams, "InvalidIdentity"},
}

// mapError converts a domain error to its JSON-RPC form. Escrow kinds are
// matched first so wrapped bank or registry causes keep the escrow kind.
func mapError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	var modErr *ModuleError
	if errors.As(err, &modErr) {
		return modErr
	}
	if kind := escrow.ErrorKind(err); kind != "" {
		entry := escrowStatuses[kind]
		return &ModuleError{HTTPStatus: entry.status, Code: entry.code, Message: kind, Data: err.Error()}
	}
	if errors.Is(err, nativecommon.ErrModulePaused) {
		return &ModuleError{HTTPStatus: http.StatusServiceUnavailable, Code: codeModulePaused, Message: "ModulePaused", Data: err.Error()}
	}
	for _, candidate := range otherErrors {
		if errors.Is(err, candidate.err) {
			return &ModuleError{HTTPStatus: candidate.status, Code: candidate.code, Message: candidate.message, Data: err.Error()}
		}
	}
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "internal_error", Data: err.Error()}
}

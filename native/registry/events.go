package registry

import (
	"encoding/hex"
	"strconv"

	"deedescrow/core/types"
)

const (
	EventTypeMinted      = "registry.minted"
	EventTypeApproved    = "registry.approved"
	EventTypeTransferred = "registry.transferred"
)

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Event returns the underlying event payload.
func (e registryEvent) Event() *types.Event { return e.evt }

// NewMintedEvent returns the payload emitted when a deed is minted.
func NewMintedEvent(d *Deed) *types.Event {
	attrs := deedAttributes(d)
	attrs["uri"] = d.URI
	return &types.Event{Type: EventTypeMinted, Attributes: attrs}
}

// NewApprovedEvent returns the payload emitted when an operator is approved.
func NewApprovedEvent(d *Deed) *types.Event {
	attrs := deedAttributes(d)
	attrs["operator"] = hex.EncodeToString(d.Approved[:])
	return &types.Event{Type: EventTypeApproved, Attributes: attrs}
}

// NewTransferredEvent returns the payload emitted when a deed changes hands.
func NewTransferredEvent(d *Deed, from, operator [20]byte) *types.Event {
	attrs := deedAttributes(d)
	attrs["from"] = hex.EncodeToString(from[:])
	attrs["operator"] = hex.EncodeToString(operator[:])
	return &types.Event{Type: EventTypeTransferred, Attributes: attrs}
}

func deedAttributes(d *Deed) map[string]string {
	return map[string]string{
		"deedId": strconv.FormatUint(d.ID, 10),
		"owner":  hex.EncodeToString(d.Owner[:]),
	}
}

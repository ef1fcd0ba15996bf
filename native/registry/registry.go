package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"deedescrow/core/events"
	"deedescrow/core/types"
)

var (
	ErrNotOwner         = errors.New("registry: caller is not the deed owner")
	ErrNotApproved      = errors.New("registry: caller is neither owner nor approved operator")
	ErrUnknownDeed      = errors.New("registry: unknown deed")
	ErrInvalidRecipient = errors.New("registry: invalid recipient")
	ErrEmptyURI         = errors.New("registry: token URI required")
)

var (
	deedPrefix = []byte("registry/deed/")
	supplyKey  = []byte("registry/supply")
)

// Deed is a minted property deed and its current holder.
type Deed struct {
	ID       uint64
	Owner    [20]byte
	Approved [20]byte
	URI      string
}

type kvState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Registry is the ownership ledger for deeds.
type Registry struct {
	state   kvState
	emitter events.Emitter
}

// New returns a registry reading and writing through st.
func New(st kvState) *Registry {
	return &Registry{state: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used for registry events.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

func deedKey(id uint64) []byte {
	buf := make([]byte, len(deedPrefix)+8)
	copy(buf, deedPrefix)
	binary.BigEndian.PutUint64(buf[len(deedPrefix):], id)
	return buf
}

func (r *Registry) load(id uint64) (*Deed, error) {
	if r == nil || r.state == nil {
		return nil, fmt.Errorf("registry: state not configured")
	}
	var deed Deed
	ok, err := r.state.KVGet(deedKey(id), &deed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDeed, id)
	}
	return &deed, nil
}

// TotalSupply returns the number of deeds minted so far.
func (r *Registry) TotalSupply() (uint64, error) {
	if r == nil || r.state == nil {
		return 0, fmt.Errorf("registry: state not configured")
	}
	var supply uint64
	if _, err := r.state.KVGet(supplyKey, &supply); err != nil {
		return 0, err
	}
	return supply, nil
}

// Mint creates a new deed owned by owner. Identifiers are sequential and start
// at 1.
func (r *Registry) Mint(owner [20]byte, uri string) (uint64, error) {
	if owner == ([20]byte{}) {
		return 0, ErrInvalidRecipient
	}
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return 0, ErrEmptyURI
	}
	supply, err := r.TotalSupply()
	if err != nil {
		return 0, err
	}
	id := supply + 1
	deed := &Deed{ID: id, Owner: owner, URI: uri}
	if err := r.state.KVPut(deedKey(id), deed); err != nil {
		return 0, err
	}
	if err := r.state.KVPut(supplyKey, id); err != nil {
		return 0, err
	}
	r.emit(NewMintedEvent(deed))
	return id, nil
}

// Approve authorises operator to move the deed on the owner's behalf. Passing
// the zero address clears the approval.
func (r *Registry) Approve(caller, operator [20]byte, id uint64) error {
	deed, err := r.load(id)
	if err != nil {
		return err
	}
	if deed.Owner != caller {
		return ErrNotOwner
	}
	deed.Approved = operator
	if err := r.state.KVPut(deedKey(id), deed); err != nil {
		return err
	}
	r.emit(NewApprovedEvent(deed))
	return nil
}

// CanTransfer performs every TransferFrom check without mutating state.
func (r *Registry) CanTransfer(caller, from [20]byte, id uint64) error {
	deed, err := r.load(id)
	if err != nil {
		return err
	}
	return checkTransfer(deed, caller, from)
}

func checkTransfer(deed *Deed, caller, from [20]byte) error {
	if deed.Owner != from {
		return ErrNotOwner
	}
	if caller != deed.Owner && (deed.Approved == ([20]byte{}) || caller != deed.Approved) {
		return ErrNotApproved
	}
	return nil
}

// TransferFrom moves the deed from its owner to a new holder. The caller must
// be the owner or the approved operator; the approval is cleared on transfer.
func (r *Registry) TransferFrom(caller, from, to [20]byte, id uint64) error {
	if to == ([20]byte{}) {
		return ErrInvalidRecipient
	}
	deed, err := r.load(id)
	if err != nil {
		return err
	}
	if err := checkTransfer(deed, caller, from); err != nil {
		return err
	}
	deed.Owner = to
	deed.Approved = [20]byte{}
	if err := r.state.KVPut(deedKey(id), deed); err != nil {
		return err
	}
	r.emit(NewTransferredEvent(deed, from, caller))
	return nil
}

// OwnerOf returns the current holder of the deed.
func (r *Registry) OwnerOf(id uint64) ([20]byte, error) {
	deed, err := r.load(id)
	if err != nil {
		return [20]byte{}, err
	}
	return deed.Owner, nil
}

// TokenURI returns the metadata URI recorded at mint time.
func (r *Registry) TokenURI(id uint64) (string, error) {
	deed, err := r.load(id)
	if err != nil {
		return "", err
	}
	return deed.URI, nil
}

// GetApproved returns the approved operator, or the zero address.
func (r *Registry) GetApproved(id uint64) ([20]byte, error) {
	deed, err := r.load(id)
	if err != nil {
		return [20]byte{}, err
	}
	return deed.Approved, nil
}

// Deed returns a copy of the stored deed.
func (r *Registry) Deed(id uint64) (*Deed, error) {
	return r.load(id)
}

func (r *Registry) emit(evt *types.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(registryEvent{evt: evt})
}

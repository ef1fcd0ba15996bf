package state

import (
	"sort"

	"deedescrow/core/types"
)

var (
	eventLogPrefix   = []byte("events/")
	eventCounterKey  = []byte("events/seq")
	globalEventScope = "all"
)

type eventAttribute struct {
	Key   string
	Value string
}

type storedEvent struct {
	Sequence   uint64
	Type       string
	Attributes []eventAttribute
}

// LoggedEvent is an event read back from the persisted log together with its
// global sequence number.
type LoggedEvent struct {
	Sequence uint64      `json:"sequence"`
	Event    types.Event `json:"event"`
}

func eventLogKey(scope string) []byte {
	buf := make([]byte, len(eventLogPrefix)+len(scope))
	copy(buf, eventLogPrefix)
	copy(buf[len(eventLogPrefix):], scope)
	return buf
}

// AppendEvent records ev in the global log and in each of the supplied scopes.
// The write is part of the transaction, so the log only grows when the
// mutation that produced the event commits.
func (t *Txn) AppendEvent(ev types.Event, scopes ...string) (uint64, error) {
	var seq uint64
	if _, err := t.KVGet(eventCounterKey, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := t.KVPut(eventCounterKey, seq); err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(ev.Attributes))
	for k := range ev.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	record := storedEvent{Sequence: seq, Type: ev.Type, Attributes: make([]eventAttribute, 0, len(keys))}
	for _, k := range keys {
		record.Attributes = append(record.Attributes, eventAttribute{Key: k, Value: ev.Attributes[k]})
	}
	for _, scope := range append([]string{globalEventScope}, scopes...) {
		var list []storedEvent
		if err := t.KVGetList(eventLogKey(scope), &list); err != nil {
			return 0, err
		}
		list = append(list, record)
		if err := t.KVPut(eventLogKey(scope), list); err != nil {
			return 0, err
		}
	}
	return seq, nil
}

// Events returns the events recorded under scope in the order they were
// appended. An empty scope returns the global log.
func (t *Txn) Events(scope string) ([]LoggedEvent, error) {
	if scope == "" {
		scope = globalEventScope
	}
	var list []storedEvent
	if err := t.KVGetList(eventLogKey(scope), &list); err != nil {
		return nil, err
	}
	out := make([]LoggedEvent, 0, len(list))
	for _, record := range list {
		attrs := make(map[string]string, len(record.Attributes))
		for _, attr := range record.Attributes {
			attrs[attr.Key] = attr.Value
		}
		out = append(out, LoggedEvent{Sequence: record.Sequence, Event: types.Event{Type: record.Type, Attributes: attrs}})
	}
	return out, nil
}

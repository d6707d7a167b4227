// Package rt holds the small set of lock-free/wait-free primitives
// shared by every UI<->audio boundary in the core: a single-slot
// Handshake, a two-buffer accessor, and a bounded SPSC ring. None of
// these allocate on their hot path once constructed.
package rt

import "sync/atomic"

// handshakeState names the three states a Handshake[T] can be in.
type handshakeState int32

const (
	stateIdle handshakeState = iota
	statePublished
	stateAcked
)

// Handshake is a single-producer/single-consumer mailbox bounded to
// one outstanding message (spec.md §4.2). The producer (UI thread)
// calls Publish; the consumer (audio thread) calls Read or Peek, then
// Acknowledged once it has finished with the value. written/read are
// sequentially consistent booleans implemented as an atomic state
// machine; T itself is never touched concurrently by both sides
// because the state transitions serialize access.
type Handshake[T any] struct {
	state   atomic.Int32
	payload T
}

// NewHandshake returns an idle handshake.
func NewHandshake[T any]() *Handshake[T] {
	h := &Handshake[T]{}
	h.state.Store(int32(stateIdle))
	return h
}

// Publish moves a value from Idle to Published. It is a usage error
// to call Publish while a prior value is still Published or Acked but
// not yet observed as Idle again; Publish reports false in that case
// and leaves the handshake unchanged so the caller (the UI thread) can
// defer its modification, matching the SnapshotInFlight error kind in
// spec.md §7.
func (h *Handshake[T]) Publish(value T) bool {
	if !h.state.CompareAndSwap(int32(stateIdle), int32(statePublished)) {
		return false
	}
	h.payload = value
	return true
}

// Peek reports whether a published value is waiting, without
// consuming it.
func (h *Handshake[T]) Peek() (T, bool) {
	var zero T
	if handshakeState(h.state.Load()) != statePublished {
		return zero, false
	}
	return h.payload, true
}

// Read moves the handshake from Published to Acked and returns the
// payload. It does not reset the handshake to Idle — the producer
// does that via Acknowledged once it has observed the swap, giving
// the producer a chance to notice its publish was consumed.
func (h *Handshake[T]) Read() (T, bool) {
	var zero T
	if !h.state.CompareAndSwap(int32(statePublished), int32(stateAcked)) {
		return zero, false
	}
	value := h.payload
	h.payload = zero
	return value, true
}

// Acknowledged returns the handshake to Idle once the consumer has
// moved to Acked, allowing the producer to Publish again. Returns
// false if there was nothing to acknowledge yet.
func (h *Handshake[T]) Acknowledged() bool {
	return h.state.CompareAndSwap(int32(stateAcked), int32(stateIdle))
}

// IsIdle reports whether the producer may Publish right now.
func (h *Handshake[T]) IsIdle() bool {
	return handshakeState(h.state.Load()) == stateIdle
}

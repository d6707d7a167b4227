package rt

import "errors"

// Sentinel errors for UI-side call sites that want errors.Is, mapping
// the error kinds named in spec.md §7. Audio-thread code never
// constructs or returns these — it bumps a Stats counter instead.
var (
	ErrQueueFull       = errors.New("rt: queue full")
	ErrNoSuchHandle    = errors.New("rt: no such handle")
	ErrSnapshotInFlight = errors.New("rt: snapshot publish already in flight")
)

// Package buffers implements the immutable PCM buffer store (spec.md
// §4.11), keyed by random UUID handles: UI-side add/remove requests resolve as
// futures only once the audio thread has acknowledged a snapshot that
// reflects them, so a buffer is never freed while the render side
// might still be reading it. Grounded on the original
// AudioBufferStore.cpp's command-queue/accessor/swap-ack pipeline; the
// publish mechanism is internal/rt.DoubleBuffer, matching spec.md
// §4.3's description of the store publishing through "a
// double-buffered map."
package buffers

import (
	"crypto/sha256"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/outline-audio/scorecore/internal/rt"
)

// Handle names one stored buffer.
type Handle uuid.UUID

// BackingStoreType distinguishes where a buffer's samples live.
// Everything this core ships sounds the same from Go's perspective —
// ordinary heap-backed slices — but the type is carried through so a
// future memory-mapped or GPU-resident backing store can be added
// without changing the handle/future API.
type BackingStoreType int

const (
	BackingInMemory BackingStoreType = iota
)

// Descriptor is the format metadata attached to a buffer.
type Descriptor struct {
	Channels   int
	SampleRate float64
	Backing    BackingStoreType
}

// Buffer is one immutable PCM payload, with a sha256 hash of its
// samples recorded in ContentHash.
type Buffer struct {
	Handle      Handle
	Descriptor  Descriptor
	Data        []float32
	ContentHash [32]byte
}

// AddFuture resolves once the audio thread has accepted a snapshot
// that contains the newly added buffer.
type AddFuture struct {
	ch chan addResult
}

type addResult struct {
	handle Handle
	err    error
}

// Wait blocks until the add completes, returning the buffer's handle.
func (f *AddFuture) Wait() (Handle, error) {
	r := <-f.ch
	return r.handle, r.err
}

func (f *AddFuture) resolve(h Handle, err error) {
	f.ch <- addResult{handle: h, err: err}
	close(f.ch)
}

// RemoveFuture resolves once the audio thread has accepted a snapshot
// from which the removed buffer is absent, at which point its backing
// memory has been released.
type RemoveFuture struct {
	ch chan bool
}

// Wait blocks until the remove completes, reporting success.
func (f *RemoveFuture) Wait() bool {
	return <-f.ch
}

func (f *RemoveFuture) resolve(success bool) {
	f.ch <- success
	close(f.ch)
}

// snapshot is the unit of content the double buffer swaps. Both slots
// start out holding one of these by value, so the map itself must
// never be shared between slots — onReaderSwap below clones it rather
// than copying the snapshot struct verbatim.
type snapshot struct {
	buffers map[Handle]*Buffer
}

func cloneBufferMap(src map[Handle]*Buffer) map[Handle]*Buffer {
	cp := make(map[Handle]*Buffer, len(src))
	for h, b := range src {
		cp[h] = b
	}
	return cp
}

// Store owns the UI-editable buffer map and the double-buffer
// publishing render-visible snapshots (spec.md §4.3).
type Store struct {
	mu sync.Mutex

	dirty bool

	db     *rt.DoubleBuffer[snapshot]
	render *snapshot

	pendingAdds    map[Handle]*AddFuture
	pendingRemoves map[Handle]*RemoveFuture
}

// New creates an empty buffer store.
func New() *Store {
	db := rt.NewDoubleBuffer[snapshot](func(writeTo, readFrom *snapshot) {
		writeTo.buffers = cloneBufferMap(readFrom.buffers)
	})
	db.Write().buffers = map[Handle]*Buffer{}
	return &Store{
		db:             db,
		pendingAdds:    map[Handle]*AddFuture{},
		pendingRemoves: map[Handle]*RemoveFuture{},
	}
}

// AddInMemory inserts a new buffer, returning a future that resolves
// once the audio thread has accepted a snapshot containing it.
func (s *Store) AddInMemory(descriptor Descriptor, data []float32) *AddFuture {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := Handle(uuid.New())
	s.db.WriterUpdate(false)
	s.db.Write().buffers[handle] = &Buffer{
		Handle:      handle,
		Descriptor:  descriptor,
		Data:        data,
		ContentHash: contentHash(data),
	}
	s.dirty = true

	fut := &AddFuture{ch: make(chan addResult, 1)}
	s.pendingAdds[handle] = fut
	return fut
}

// Remove deletes a buffer, returning a future that resolves once the
// audio thread has accepted a snapshot from which it is absent.
func (s *Store) Remove(handle Handle) *RemoveFuture {
	s.mu.Lock()
	defer s.mu.Unlock()

	fut := &RemoveFuture{ch: make(chan bool, 1)}
	s.db.WriterUpdate(false)
	working := s.db.Write()
	if _, ok := working.buffers[handle]; !ok {
		fut.resolve(false)
		return fut
	}
	delete(working.buffers, handle)
	s.dirty = true
	s.pendingRemoves[handle] = fut
	return fut
}

// EndUpdate flags the writer's working slot as changed, if it was
// mutated since the last call, so the audio thread's next
// AcceptLatest picks it up.
func (s *Store) EndUpdate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return false
	}
	s.db.WriterUpdate(true)
	s.dirty = false
	return true
}

// AcceptLatest swaps in the most recently published snapshot, if any,
// resolving any add/remove futures that snapshot settles. Called once
// per render block from the audio thread.
func (s *Store) AcceptLatest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.db.Read()
	s.db.ReaderAcceptLatest()
	snap := s.db.Read()
	if snap == before {
		return false
	}
	s.render = snap

	for h, fut := range s.pendingAdds {
		if _, present := snap.buffers[h]; present {
			fut.resolve(h, nil)
			delete(s.pendingAdds, h)
		}
	}
	for h, fut := range s.pendingRemoves {
		if _, present := snap.buffers[h]; !present {
			fut.resolve(true)
			delete(s.pendingRemoves, h)
		}
	}
	return true
}

// Lookup returns the render-visible buffer for handle, if present.
func (s *Store) Lookup(handle Handle) (*Buffer, bool) {
	if s.render == nil {
		return nil, false
	}
	b, ok := s.render.buffers[handle]
	return b, ok
}

func contentHash(data []float32) [32]byte {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, sample := range data {
		bits := math.Float32bits(sample)
		buf[0] = byte(bits)
		buf[1] = byte(bits >> 8)
		buf[2] = byte(bits >> 16)
		buf[3] = byte(bits >> 24)
		h.Write(buf)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

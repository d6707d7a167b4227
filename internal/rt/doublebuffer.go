package rt

import "sync/atomic"

// DoubleBuffer is a two-slot writer/reader accessor (spec.md §4.3). It
// is not a classic "swap a copy" double buffer: the writeTo/readFrom
// pointers themselves are shared, atomically-swapped state, and only
// the reader ever performs the swap. This lets the writer keep
// mutating its own slot freely between swaps with no locking, and lets
// the reader observe a fully-formed snapshot with a single pointer
// load.
//
// All flag operations are sequentially consistent per spec; Go's
// atomic package provides that by default.
type DoubleBuffer[T any] struct {
	slots [2]T

	writeTo  atomic.Pointer[T]
	readFrom atomic.Pointer[T]

	changed bool32
	swapped bool32

	// onReaderSwap runs on the writer side once it notices the reader
	// has swapped, bringing the writer's new slot up to date with what
	// the reader now sees. Defaults to a plain copy.
	onReaderSwap func(writeTo, readFrom *T)
}

// bool32 wraps atomic.Bool so the zero value of DoubleBuffer already
// has usable changed/swapped flags, with no constructor call needed
// for the flags themselves.
type bool32 struct{ v atomic.Bool }

func (b *bool32) Load() bool                  { return b.v.Load() }
func (b *bool32) Store(val bool)              { b.v.Store(val) }
func (b *bool32) CompareAndSwap(old, new bool) bool { return b.v.CompareAndSwap(old, new) }

// NewDoubleBuffer constructs a DoubleBuffer. onReaderSwap may be nil,
// in which case the writer's slot is overwritten with a plain copy of
// the reader's slot after every swap — the default described in
// spec.md §4.3.
func NewDoubleBuffer[T any](onReaderSwap func(writeTo, readFrom *T)) *DoubleBuffer[T] {
	d := &DoubleBuffer[T]{}
	d.writeTo.Store(&d.slots[0])
	d.readFrom.Store(&d.slots[1])
	if onReaderSwap == nil {
		onReaderSwap = func(writeTo, readFrom *T) { *writeTo = *readFrom }
	}
	d.onReaderSwap = onReaderSwap
	return d
}

// WriterCanModify reports whether the writer may mutate its slot
// without racing a pending swap.
func (d *DoubleBuffer[T]) WriterCanModify() bool {
	return !d.changed.Load()
}

// Write returns the writer's current working slot for in-place
// mutation.
func (d *DoubleBuffer[T]) Write() *T {
	return d.writeTo.Load()
}

// WriterUpdate finishes one writer-side edit pass. mutationOutstanding
// should be true if the caller actually mutated the working slot since
// the last call. If the reader swapped since the last WriterUpdate,
// the writer's new slot is brought up to date via onReaderSwap before
// any further mutation.
func (d *DoubleBuffer[T]) WriterUpdate(mutationOutstanding bool) {
	if mutationOutstanding {
		d.changed.Store(true)
	}
	if d.swapped.CompareAndSwap(true, false) {
		d.onReaderSwap(d.writeTo.Load(), d.readFrom.Load())
	}
}

// ReaderAcceptLatest gives the reader a chance to pick up a new
// snapshot: it atomically clears `changed`, and if a change was
// indeed pending, swaps the write/read pointers and marks `swapped`
// for the writer to notice on its next WriterUpdate.
func (d *DoubleBuffer[T]) ReaderAcceptLatest() {
	if d.changed.CompareAndSwap(true, false) {
		wt := d.writeTo.Load()
		rf := d.readFrom.Load()
		d.writeTo.Store(rf)
		d.readFrom.Store(wt)
		d.swapped.Store(true)
	}
}

// Read returns the reader's current slot.
func (d *DoubleBuffer[T]) Read() *T {
	return d.readFrom.Load()
}

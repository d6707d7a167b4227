// Package noteindex implements the loop-aware interval tree that
// indexes clip notes by score region (spec.md §4.4). All mutating
// operations run on the UI thread and render-side code only calls the
// Collect* read methods. Index does no locking of its own: the slab is
// shared by every instance, so callers serialize access
// (noteclip.System holds its mutex around both writes and Collect*).
//
// Per spec.md §9's design note ("re-architect as an arena + indices +
// generational handles"), notes live once in a shared slab addressed
// by SlabIndex; tree nodes only ever store slab indices, never copies
// of the note data. Instances that Clone() share the same *treeData
// by pointer (with a refcount) until one of them writes, at which
// point the writer deep-clones the node structure (but not the slab
// entries themselves — those stay shared) and becomes independent.
package noteindex

import (
	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/score"
)

// packetWidth bounds how many slab indices a single packet node holds
// before the leaf's packet list grows another link. Spec.md §4.4
// calls for "N chosen small, e.g. 1"; 4 amortizes allocation a little
// better while staying small.
const packetWidth = 4

// minSplitSize is the smallest a tree node's region may be before
// insert/collect treat it as a leaf, in beats (one measure at the
// reference 4/4 signature).
const minSplitSize = 4.0

// SlabIndex addresses one ClipNote in the index's shared slab. It is
// stable for the lifetime of the note (until Remove frees it).
type SlabIndex int32

const invalidSlabIndex SlabIndex = -1

// ClipNote is the data stored once per note (spec.md §3's "Clip
// note").
type ClipNote struct {
	Span score.Region
	Note miditypes.MIDINote
}

type packetNode struct {
	indices [packetWidth]SlabIndex
	count   int
	next    *packetNode
}

func (p *packetNode) contains(idx SlabIndex) bool {
	for ; p != nil; p = p.next {
		for i := 0; i < p.count; i++ {
			if p.indices[i] == idx {
				return true
			}
		}
	}
	return false
}

// append inserts idx, allocating a new link if every existing packet
// is full. Returns the (possibly new) head of the list.
func appendIndex(head *packetNode, idx SlabIndex) *packetNode {
	if head != nil && head.contains(idx) {
		return head
	}
	for p := head; p != nil; p = p.next {
		if p.count < packetWidth {
			p.indices[p.count] = idx
			p.count++
			return head
		}
	}
	node := &packetNode{}
	node.indices[0] = idx
	node.count = 1
	node.next = head
	return node
}

// removeIndex removes idx from the list if present, compacting its
// packet in place. Returns the (possibly new, possibly nil) head.
func removeIndex(head *packetNode, idx SlabIndex) *packetNode {
	for p := head; p != nil; p = p.next {
		for i := 0; i < p.count; i++ {
			if p.indices[i] == idx {
				p.indices[i] = p.indices[p.count-1]
				p.count--
				return head
			}
		}
	}
	return head
}

func collectPacketIndices(head *packetNode, out map[SlabIndex]struct{}) {
	for p := head; p != nil; p = p.next {
		for i := 0; i < p.count; i++ {
			out[p.indices[i]] = struct{}{}
		}
	}
}

type treeNode struct {
	region      score.Region
	packets     *packetNode // non-nil only on leaves (region size <= minSplitSize)
	left, right *treeNode
}

func (n *treeNode) isLeaf() bool {
	return n.left == nil && n.right == nil
}

// cloneNode deep-copies the node structure; slab indices (ints) are
// copied by value, the slab entries they address are never touched.
func cloneNode(n *treeNode) *treeNode {
	if n == nil {
		return nil
	}
	cp := &treeNode{region: n.region}
	for p := n.packets; p != nil; p = p.next {
		cp.packets = &packetNode{indices: p.indices, count: p.count, next: cp.packets}
	}
	// The clone above reverses packet-list order, which is harmless —
	// the list is an unordered set.
	cp.left = cloneNode(n.left)
	cp.right = cloneNode(n.right)
	return cp
}

type treeData struct {
	refCount int
	root     *treeNode
}

// InstanceID addresses one share-aware handle into an Index.
type InstanceID int64

type instance struct {
	tree *treeData
}

// Index is the loop-aware interval tree over score regions, shared by
// every NoteClip instance that descends from the same Create call
// (spec.md §4.4).
type Index struct {
	beatsPerMeasure float64

	slab     []ClipNote
	slabUsed []bool
	freeList []SlabIndex

	instances map[InstanceID]*instance
	nextID    InstanceID
}

// New creates an empty index.
func New(beatsPerMeasure float64) *Index {
	return &Index{
		beatsPerMeasure: beatsPerMeasure,
		instances:       make(map[InstanceID]*instance),
	}
}

// Create allocates a new head instance with an empty tree rooted at
// region.
func (ix *Index) Create(region score.Region) InstanceID {
	id := ix.nextID
	ix.nextID++
	ix.instances[id] = &instance{
		tree: &treeData{refCount: 1, root: &treeNode{region: region}},
	}
	return id
}

// Clone creates a new instance sharing src's physical tree. The
// sharing is lazy: no node is copied until one of the two instances
// writes (invariant 3, spec.md §4.4).
func (ix *Index) Clone(src InstanceID) (InstanceID, bool) {
	srcInst, ok := ix.instances[src]
	if !ok {
		return 0, false
	}
	srcInst.tree.refCount++
	id := ix.nextID
	ix.nextID++
	ix.instances[id] = &instance{tree: srcInst.tree}
	return id, true
}

// Destroy releases id. If id owned the tree exclusively, every slab
// entry the tree references is returned to the free list (invariant
// 4); if the tree was shared, Destroy simply drops id's reference.
func (ix *Index) Destroy(id InstanceID) {
	inst, ok := ix.instances[id]
	if !ok {
		return
	}
	delete(ix.instances, id)

	inst.tree.refCount--
	if inst.tree.refCount > 0 {
		return
	}
	seen := map[SlabIndex]struct{}{}
	collectAllIndices(inst.tree.root, seen)
	for idx := range seen {
		ix.freeSlabIndex(idx)
	}
}

func collectAllIndices(n *treeNode, out map[SlabIndex]struct{}) {
	if n == nil {
		return
	}
	collectPacketIndices(n.packets, out)
	collectAllIndices(n.left, out)
	collectAllIndices(n.right, out)
}

func (ix *Index) allocSlabIndex(note ClipNote) SlabIndex {
	if n := len(ix.freeList); n > 0 {
		idx := ix.freeList[n-1]
		ix.freeList = ix.freeList[:n-1]
		ix.slab[idx] = note
		ix.slabUsed[idx] = true
		return idx
	}
	ix.slab = append(ix.slab, note)
	ix.slabUsed = append(ix.slabUsed, true)
	return SlabIndex(len(ix.slab) - 1)
}

func (ix *Index) freeSlabIndex(idx SlabIndex) {
	if idx < 0 || int(idx) >= len(ix.slab) || !ix.slabUsed[idx] {
		return
	}
	ix.slabUsed[idx] = false
	ix.freeList = append(ix.freeList, idx)
}

// ensureOwned breaks sharing on inst if needed, returning its private
// tree for mutation.
func (ix *Index) ensureOwned(inst *instance) *treeData {
	if inst.tree.refCount == 1 {
		return inst.tree
	}
	inst.tree.refCount--
	owned := &treeData{refCount: 1, root: cloneNode(inst.tree.root)}
	inst.tree = owned
	return owned
}

// growToContain doubles root's region, alternately to the left and
// right, until it fully contains span.
func growToContain(root *treeNode, span score.Region, beatsPerMeasure float64, growLeftNext *bool) *treeNode {
	spanStart := span.Begin.TotalBeats(beatsPerMeasure)
	spanEnd := spanStart + span.SizeBeats(beatsPerMeasure)

	for {
		rootStart := root.region.Begin.TotalBeats(beatsPerMeasure)
		rootEnd := rootStart + root.region.SizeBeats(beatsPerMeasure)
		if spanStart >= rootStart && spanEnd <= rootEnd {
			return root
		}

		newSize := root.region.SizeBeats(beatsPerMeasure) * 2
		var newBegin score.Cursor
		var left, right *treeNode
		if *growLeftNext {
			newBegin = score.FromTotalBeats(rootStart-root.region.SizeBeats(beatsPerMeasure), beatsPerMeasure)
			left = &treeNode{region: score.Region{Begin: newBegin, Size: root.region.Size}}
			right = root
		} else {
			newBegin = root.region.Begin
			left = root
			right = &treeNode{region: score.Region{Begin: score.FromTotalBeats(rootEnd, beatsPerMeasure), Size: root.region.Size}}
		}
		*growLeftNext = !*growLeftNext

		root = &treeNode{
			region: score.Region{Begin: newBegin, Size: score.FromTotalBeats(newSize, beatsPerMeasure)},
			left:   left,
			right:  right,
		}
	}
}

// Insert adds note to id's tree, growing and splitting as needed
// (spec.md §4.4).
func (ix *Index) Insert(id InstanceID, note ClipNote) (SlabIndex, bool) {
	inst, ok := ix.instances[id]
	if !ok {
		return invalidSlabIndex, false
	}
	tree := ix.ensureOwned(inst)

	growLeft := true
	tree.root = growToContain(tree.root, note.Span, ix.beatsPerMeasure, &growLeft)

	idx := ix.allocSlabIndex(note)
	insertIntoNode(tree.root, note.Span, idx, ix.beatsPerMeasure)
	return idx, true
}

func insertIntoNode(n *treeNode, span score.Region, idx SlabIndex, beatsPerMeasure float64) {
	if !n.region.Intersects(span, beatsPerMeasure) {
		return
	}
	if n.region.SizeBeats(beatsPerMeasure) <= minSplitSize {
		n.packets = appendIndex(n.packets, idx)
		return
	}
	if n.isLeaf() {
		splitNode(n, beatsPerMeasure)
	}
	insertIntoNode(n.left, span, idx, beatsPerMeasure)
	insertIntoNode(n.right, span, idx, beatsPerMeasure)
}

func splitNode(n *treeNode, beatsPerMeasure float64) {
	half := score.FromTotalBeats(n.region.SizeBeats(beatsPerMeasure)/2, beatsPerMeasure)
	mid := score.WrappedAddCursor(n.region.Begin, half, beatsPerMeasure)
	n.left = &treeNode{region: score.Region{Begin: n.region.Begin, Size: half}}
	n.right = &treeNode{region: score.Region{Begin: mid, Size: half}}
}

// Remove deletes every note of instance id satisfying predicate,
// searching the whole tree, and returns how many it removed. It removes the slab index from every leaf packet list that
// references it (not just the first one found), so the free-list /
// live-index invariant (spec.md §4.4 invariant 2) always holds even
// though a single note may be indexed under several leaves.
func (ix *Index) Remove(id InstanceID, predicate func(ClipNote) bool) int {
	inst, ok := ix.instances[id]
	if !ok {
		return 0
	}
	tree := ix.ensureOwned(inst)

	toFree := map[SlabIndex]struct{}{}
	markForRemoval(tree.root, predicate, ix, toFree)
	if len(toFree) == 0 {
		return 0
	}
	for idx := range toFree {
		removeFromNode(tree.root, idx)
		ix.freeSlabIndex(idx)
	}
	return len(toFree)
}

func markForRemoval(n *treeNode, predicate func(ClipNote) bool, ix *Index, toFree map[SlabIndex]struct{}) {
	if n == nil {
		return
	}
	for p := n.packets; p != nil; p = p.next {
		for i := 0; i < p.count; i++ {
			idx := p.indices[i]
			if _, already := toFree[idx]; already {
				continue
			}
			if int(idx) < len(ix.slab) && ix.slabUsed[idx] && predicate(ix.slab[idx]) {
				toFree[idx] = struct{}{}
			}
		}
	}
	markForRemoval(n.left, predicate, ix, toFree)
	markForRemoval(n.right, predicate, ix, toFree)
}

func removeFromNode(n *treeNode, idx SlabIndex) {
	if n == nil {
		return
	}
	n.packets = removeIndex(n.packets, idx)
	removeFromNode(n.left, idx)
	removeFromNode(n.right, idx)
}

// CollectNotesStartingInRegion visits every indexed note once and
// yields those whose span begins inside region, stopping once cap
// notes have been appended to out. Returns the count that would have
// been written absent the cap.
func (ix *Index) CollectNotesStartingInRegion(id InstanceID, region score.Region, out []ClipNote, cap int) int {
	return ix.collect(id, region, out, cap, func(note ClipNote, region score.Region) bool {
		return region.Contains(note.Span.Begin, ix.beatsPerMeasure)
	})
}

// CollectNotesIntersectingRegion is as above, but matches any note
// whose span intersects region at all.
func (ix *Index) CollectNotesIntersectingRegion(id InstanceID, region score.Region, out []ClipNote, cap int) int {
	return ix.collect(id, region, out, cap, func(note ClipNote, region score.Region) bool {
		return note.Span.Intersects(region, ix.beatsPerMeasure)
	})
}

func (ix *Index) collect(id InstanceID, region score.Region, out []ClipNote, cap int, match func(ClipNote, score.Region) bool) int {
	inst, ok := ix.instances[id]
	if !ok {
		return 0
	}
	seen := map[SlabIndex]struct{}{}
	gatherIntersecting(inst.tree.root, region, ix.beatsPerMeasure, seen)

	count := 0
	for idx := range seen {
		if int(idx) >= len(ix.slab) || !ix.slabUsed[idx] {
			continue
		}
		note := ix.slab[idx]
		if !match(note, region) {
			continue
		}
		if count < cap && count < len(out) {
			out[count] = note
		}
		count++
	}
	return count
}

func gatherIntersecting(n *treeNode, region score.Region, beatsPerMeasure float64, out map[SlabIndex]struct{}) {
	if n == nil || !n.region.Intersects(region, beatsPerMeasure) {
		return
	}
	collectPacketIndices(n.packets, out)
	gatherIntersecting(n.left, region, beatsPerMeasure, out)
	gatherIntersecting(n.right, region, beatsPerMeasure, out)
}

// SlabLiveCount returns the number of currently-live (non-freed) slab
// entries, for invariant testing.
func (ix *Index) SlabLiveCount() int {
	n := 0
	for _, used := range ix.slabUsed {
		if used {
			n++
		}
	}
	return n
}

// FreeListLen returns the number of free slab slots, for invariant
// testing.
func (ix *Index) FreeListLen() int {
	return len(ix.freeList)
}

// BeatsPerMeasure returns the time signature this index was created
// with.
func (ix *Index) BeatsPerMeasure() float64 {
	return ix.beatsPerMeasure
}

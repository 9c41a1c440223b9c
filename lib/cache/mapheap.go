package cache

import (
	"container/heap"
	"fmt"
)

// item represents an entry of the eviction order with a key for
// identification and a priority (observation sequence)
type item[K comparable] struct {
	Key      K      // Unique identifier for the item
	Priority uint64 // Priority used for ordering in the heap
	index    int    // Index in the heap, maintained by heap package
}

func (i *item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap is a min-heap with key-based access. It combines a binary heap with
// a hash map: O(log n) for priority operations, O(1) for lookups by key.
//
// Note: This implementation is not thread-safe, callers must synchronize.
//
// Example usage:
//
//	order := NewMapHeap[string]()
//	order.AddItem("a", 1)
//	order.AddItem("b", 2)
//	oldest, _ := order.PopMin() // "a"
type MapHeap[K comparable] struct {
	items    []*item[K]     // The actual heap slice
	itemsMap map[K]*item[K] // Map for O(1) access by key
}

// NewMapHeap creates a new empty heap
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*item[K], 0),
		itemsMap: make(map[K]*item[K]),
	}
}

// Len returns the number of items in the heap (part of heap.Interface)
func (mh *MapHeap[K]) Len() int { return len(mh.items) }

// Less compares items by priority (part of heap.Interface)
func (mh *MapHeap[K]) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (mh *MapHeap[K]) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (mh *MapHeap[K]) Push(x interface{}) {
	it := x.(*item[K])
	it.index = len(mh.items)
	mh.items = append(mh.items, it)
	mh.itemsMap[it.Key] = it
}

// Pop removes and returns the last item (part of heap.Interface)
func (mh *MapHeap[K]) Pop() interface{} {
	old := mh.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // Avoid memory leak
	it.index = -1
	mh.items = old[:n-1]
	delete(mh.itemsMap, it.Key)
	return it
}

// AddItem adds a new item or updates the priority of an existing one
func (mh *MapHeap[K]) AddItem(key K, priority uint64) {
	if it, exists := mh.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(mh, it.index)
		return
	}
	heap.Push(mh, &item[K]{Key: key, Priority: priority})
}

// RemoveByKey removes an item by its key and returns its priority
func (mh *MapHeap[K]) RemoveByKey(key K) (uint64, bool) {
	it, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(mh, it.index)
	return it.Priority, true
}

// PopMin removes and returns the key with the lowest priority
func (mh *MapHeap[K]) PopMin() (K, bool) {
	if len(mh.items) == 0 {
		var zero K
		return zero, false
	}
	it := heap.Pop(mh).(*item[K])
	return it.Key, true
}

// Peek returns the key and priority of the lowest item without removing it
func (mh *MapHeap[K]) Peek() (K, uint64, bool) {
	if len(mh.items) == 0 {
		var zero K
		return zero, 0, false
	}
	return mh.items[0].Key, mh.items[0].Priority, true
}

// Contains checks if a key exists in the heap
func (mh *MapHeap[K]) Contains(key K) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// Reset removes all items
func (mh *MapHeap[K]) Reset() {
	mh.items = make([]*item[K], 0)
	mh.itemsMap = make(map[K]*item[K])
}

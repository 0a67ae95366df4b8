package common

import "strconv"

// RollingIndex is a bounded, gapless sequence of items indexed from an
// arbitrary starting point. When the underlying slice reaches twice the
// target size, the oldest half is dropped. Stores use it to keep a sliding
// window over per-creator merge events and consensus events.
type RollingIndex struct {
	name      string
	size      int
	lastIndex int
	items     []interface{}
}

// NewRollingIndex creates a RollingIndex holding at most 2*size items.
func NewRollingIndex(name string, size int) *RollingIndex {
	return &RollingIndex{
		name:      name,
		size:      size,
		items:     make([]interface{}, 0, 2*size),
		lastIndex: -1,
	}
}

// GetLastWindow returns the cached items and the index of the latest item.
func (r *RollingIndex) GetLastWindow() (lastWindow []interface{}, lastIndex int) {
	return r.items, r.lastIndex
}

// Get returns all items with index strictly greater than skipIndex. A TooLate
// error indicates the requested items were already evicted.
func (r *RollingIndex) Get(skipIndex int) ([]interface{}, error) {
	res := make([]interface{}, 0)

	if skipIndex > r.lastIndex {
		return res, nil
	}

	cachedItems := len(r.items)
	//there are no gaps between indexes
	oldestCachedIndex := r.lastIndex - cachedItems + 1
	if skipIndex+1 < oldestCachedIndex {
		return res, NewStoreErr(r.name, TooLate, strconv.Itoa(skipIndex))
	}

	start := skipIndex - oldestCachedIndex + 1

	return r.items[start:], nil
}

// GetItem returns the item stored at a specific index.
func (r *RollingIndex) GetItem(index int) (interface{}, error) {
	items := len(r.items)
	oldestCached := r.lastIndex - items + 1
	if index < oldestCached {
		return nil, NewStoreErr(r.name, TooLate, strconv.Itoa(index))
	}
	findex := index - oldestCached
	if findex >= items {
		return nil, NewStoreErr(r.name, KeyNotFound, strconv.Itoa(index))
	}
	return r.items[findex], nil
}

// Set inserts an item at lastIndex+1, or replaces an item that is still in
// the window. Inserting further ahead returns a SkippedIndex error so the
// sequence never contains gaps.
func (r *RollingIndex) Set(item interface{}, index int) error {
	if 0 <= r.lastIndex && index > r.lastIndex+1 {
		return NewStoreErr(r.name, SkippedIndex, strconv.Itoa(index))
	}

	//adding a new item
	if r.lastIndex < 0 || (index == r.lastIndex+1) {
		if len(r.items) >= 2*r.size {
			r.roll()
		}
		r.items = append(r.items, item)
		r.lastIndex = index
		return nil
	}

	//replacing an existing item; index must still be in the window
	cachedItems := len(r.items)
	oldestCachedIndex := r.lastIndex - cachedItems + 1

	if index < oldestCachedIndex {
		return NewStoreErr(r.name, TooLate, strconv.Itoa(index))
	}

	position := index - oldestCachedIndex
	r.items[position] = item

	return nil
}

func (r *RollingIndex) roll() {
	newList := make([]interface{}, 0, 2*r.size)
	newList = append(newList, r.items[r.size:]...)
	r.items = newList
}

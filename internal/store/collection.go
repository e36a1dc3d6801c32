package store

// collection is an ordered set of entities keyed by id.
type collection[T any] struct {
	items []T
	index map[string]int
	id    func(T) string
}

func newCollection[T any](id func(T) string) *collection[T] {
	return &collection[T]{index: make(map[string]int), id: id}
}

// replaceAll swaps in items; later duplicates win, keeping first-seen order.
func (c *collection[T]) replaceAll(items []T) {
	c.items = make([]T, 0, len(items))
	c.index = make(map[string]int, len(items))
	for _, it := range items {
		c.upsert(it)
	}
}

// upsert replaces the item with the same id, or appends. It reports whether
// an existing item was replaced.
func (c *collection[T]) upsert(item T) bool {
	id := c.id(item)
	if i, ok := c.index[id]; ok {
		c.items[i] = item
		return true
	}
	c.index[id] = len(c.items)
	c.items = append(c.items, item)
	return false
}

func (c *collection[T]) remove(id string) (T, bool) {
	var zero T
	i, ok := c.index[id]
	if !ok {
		return zero, false
	}
	removed := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.id(c.items[j])] = j
	}
	return removed, true
}

// removeWhere drops every item matching pred and returns them.
func (c *collection[T]) removeWhere(pred func(T) bool) []T {
	var removed []T
	kept := c.items[:0]
	for _, it := range c.items {
		if pred(it) {
			removed = append(removed, it)
			continue
		}
		kept = append(kept, it)
	}
	if len(removed) == 0 {
		return nil
	}
	var zero T
	for i := len(kept); i < len(c.items); i++ {
		c.items[i] = zero
	}
	c.items = kept
	c.index = make(map[string]int, len(kept))
	for i, it := range kept {
		c.index[c.id(it)] = i
	}
	return removed
}

func (c *collection[T]) get(id string) (T, bool) {
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

func (c *collection[T]) size() int { return len(c.items) }

func (c *collection[T]) snapshot(clone func(T) T) []T {
	out := make([]T, len(c.items))
	for i, it := range c.items {
		if clone != nil {
			it = clone(it)
		}
		out[i] = it
	}
	return out
}

// groupBy rebuilds a grouping map over the collection.
func groupBy[T any](items []T, key func(T) string, clone func(T) T) map[string][]T {
	out := make(map[string][]T)
	for _, it := range items {
		if clone != nil {
			it = clone(it)
		}
		k := key(it)
		out[k] = append(out[k], it)
	}
	return out
}

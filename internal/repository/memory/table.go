package memory

// table keeps rows by id and remembers insertion order so listings are
// stable the way a created_at ordering would be.
type table[T any] struct {
	rows  map[string]T
	order []string
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func (t *table[T]) clone() *table[T] {
	c := &table[T]{
		rows:  make(map[string]T, len(t.rows)),
		order: append([]string(nil), t.order...),
	}
	for k, v := range t.rows {
		c.rows[k] = v
	}
	return c
}

func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) put(id string, v T) {
	if _, ok := t.rows[id]; !ok {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[T]) delete(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, k := range t.order {
		if k == id {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// filter returns rows matching keep in insertion order.
func (t *table[T]) filter(keep func(T) bool) []T {
	out := make([]T, 0)
	for _, id := range t.order {
		v := t.rows[id]
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

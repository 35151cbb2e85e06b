package selection

import "slices"

// ordered is a map that remembers insertion order. Removal is linear in the
// number of entries, which stays small for interactive selections.
type ordered[K comparable, V any] struct {
	keys []K
	vals map[K]*V
}

func (o *ordered[K, V]) get(k K) (*V, bool) {
	v, ok := o.vals[k]
	return v, ok
}

// put inserts v at the end, or replaces the value in place if k exists.
func (o *ordered[K, V]) put(k K, v V) {
	if o.vals == nil {
		o.vals = make(map[K]*V)
	}
	if p, ok := o.vals[k]; ok {
		*p = v
		return
	}
	o.keys = append(o.keys, k)
	o.vals[k] = &v
}

func (o *ordered[K, V]) remove(k K) bool {
	if _, ok := o.vals[k]; !ok {
		return false
	}
	delete(o.vals, k)
	o.keys = slices.DeleteFunc(o.keys, func(x K) bool { return x == k })
	return true
}

func (o *ordered[K, V]) clear() {
	o.keys = nil
	o.vals = nil
}

func (o *ordered[K, V]) len() int { return len(o.keys) }

// each visits entries in insertion order.
func (o *ordered[K, V]) each(fn func(K, *V)) {
	for _, k := range o.keys {
		fn(k, o.vals[k])
	}
}

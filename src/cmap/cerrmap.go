package cmap

// NewErrMap returns a map that extends Map with an error type, which callers can also wait on
// and receive if something goes wrong.
func NewErrMap[K comparable, V any](shardCount uint64, hasher func(K) uint64) *ErrMap[K, V] {
	return &ErrMap[K, V]{
		m: New[K, errV[V]](shardCount, hasher),
	}
}

type errV[V any] struct {
	Err error
	Val V
}

// An ErrMap extends Map with returned errors as a first-class concept
type ErrMap[K comparable, V any] struct {
	m *Map[K, errV[V]]
}

// Add adds the new item to the map.
// It returns true if the item was inserted, false if it already existed (in which case it won't be inserted)
func (m *ErrMap[K, V]) Add(key K, val V) bool {
	return m.m.Add(key, errV[V]{Val: val})
}

// Set is the equivalent of `map[key] = val`.
// It always overwrites any key that existed before.
func (m *ErrMap[K, V]) Set(key K, val V) bool {
	return m.m.Set(key, errV[V]{Val: val})
}

// SetError overwrites the key with the given error.
func (m *ErrMap[K, V]) SetError(key K, err error) bool {
	return m.m.Set(key, errV[V]{Err: err})
}

// Get returns the value corresponding to the given key, or its zero value if the key doesn't exist in the map.
// If an error has been set for the key, that will be returned.
func (m *ErrMap[K, V]) Get(key K) (V, error) {
	v := m.m.Get(key)
	return v.Val, v.Err
}

// GetOrWait mirrors Map.GetOrWait, additionally surfacing any error set for the key.
func (m *ErrMap[K, V]) GetOrWait(key K) (V, chan struct{}, bool, error) {
	v, wait, first := m.m.GetOrWait(key)
	return v.Val, wait, first, v.Err
}

// GetOrSet returns the value if set, or an error if one has been set.
// If nothing has been set for the key, it runs the given function to generate the value and then sets it;
// any other caller racing on the same key blocks until that result is available.
func (m *ErrMap[K, V]) GetOrSet(key K, f func() (V, error)) (V, error) {
	v, wait, first, err := m.GetOrWait(key)
	switch {
	case err != nil:
		return v, err
	case first:
		val, ferr := f()
		m.m.Set(key, errV[V]{Val: val, Err: ferr})
		return val, ferr
	case wait != nil:
		<-wait
		return m.Get(key)
	default:
		return v, err
	}
}

package value

// Object is a string-keyed mapping that preserves insertion order, matching
// the property order JavaScript engines report for plain objects with string
// keys.
type Object struct {
	keys []string
	m    map[string]Value
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{m: make(map[string]Value)}
}

// Value wraps the object as a Value. The object is shared, not copied.
func (o *Object) Value() Value { return Value{kind: KindObject, obj: o} }

// Set inserts or updates a key. A new key is appended to the iteration
// order; an existing key keeps its position.
func (o *Object) Set(key string, v Value) {
	if _, exists := o.m[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.m[key] = v
}

// Get returns the value for key and whether it is present.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.m[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.m[key]
	return ok
}

// Delete removes a key, preserving the order of the remaining keys.
func (o *Object) Delete(key string) {
	if _, ok := o.m[key]; !ok {
		return
	}
	delete(o.m, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

// Keys returns the keys in insertion order. The slice is shared, not copied.
func (o *Object) Keys() []string { return o.keys }

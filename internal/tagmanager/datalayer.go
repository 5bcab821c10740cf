package tagmanager

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Map is a data-layer object. Values are strings, numbers, nested Maps or
// lists built with ListOf.
type Map = map[string]any

// EventKey is the data-layer key whose presence in a push fires tag triggers.
const EventKey = "event"

// MapOf builds a Map from alternating key/value arguments.
// It panics on an odd argument count or a non-string key; callers pass literals.
func MapOf(kv ...any) Map {
	if len(kv)%2 != 0 {
		panic("tagmanager: MapOf requires an even number of arguments")
	}
	m := make(Map, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("tagmanager: MapOf key %v is not a string", kv[i]))
		}
		m[k] = kv[i+1]
	}
	return m
}

// ListOf builds a data-layer list.
func ListOf(items ...any) []any {
	out := make([]any, len(items))
	copy(out, items)
	return out
}

// Listener is notified after a push that carried an event key.
// snapshot is a private copy of the whole data layer taken right after the merge.
type Listener func(event string, snapshot Map)

// DataLayer is the cumulative key/value store that tags read from.
//
// Pushed maps are merged into the existing state: nested maps merge
// recursively, lists and scalars replace, and a nil value removes the key.
// State is never reset implicitly, so transient keys must be cleared by the
// caller with a nil push.
type DataLayer struct {
	mu        sync.Mutex
	data      Map
	listeners []Listener
}

// NewDataLayer returns an empty data layer.
func NewDataLayer() *DataLayer {
	return &DataLayer{data: Map{}}
}

// AddListener registers fn for event pushes.
func (d *DataLayer) AddListener(fn Listener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Push merges m into the data layer.
func (d *DataLayer) Push(m Map) {
	if len(m) == 0 {
		return
	}

	d.mu.Lock()
	merge(d.data, m)

	event, _ := m[EventKey].(string)
	if event == "" {
		d.mu.Unlock()
		return
	}
	snapshot := copyMap(d.data)
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(event, snapshot)
	}
}

// PushEvent pushes m with its event key set to name.
func (d *DataLayer) PushEvent(name string, m Map) {
	out := make(Map, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[EventKey] = name
	d.Push(out)
}

// PushKV pushes a single key. A nil value clears it.
func (d *DataLayer) PushKV(key string, value any) {
	d.Push(Map{key: value})
}

// Get returns the value stored under key. Dotted keys walk nested maps,
// so Get("ecommerce.currencyCode") reads inside the ecommerce object.
func (d *DataLayer) Get(key string) any {
	d.mu.Lock()
	defer d.mu.Unlock()

	var cur any = d.data
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(Map)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return copyValue(cur)
}

// Snapshot returns a deep copy of the current state.
func (d *DataLayer) Snapshot() Map {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyMap(d.data)
}

// String renders the data layer as JSON with sorted keys.
func (d *DataLayer) String() string {
	snap := d.Snapshot()
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Sprintf("%v", snap)
	}
	return string(b)
}

func merge(dst, src Map) {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		if sm, ok := v.(Map); ok {
			if dm, ok := dst[k].(Map); ok {
				merge(dm, sm)
				continue
			}
			nm := Map{}
			merge(nm, sm)
			dst[k] = nm
			continue
		}
		dst[k] = copyValue(v)
	}
}

func copyMap(m Map) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case Map:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []Map:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyMap(e)
		}
		return out
	default:
		return v
	}
}

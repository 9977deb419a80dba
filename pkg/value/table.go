package value

// Table is the open-addressed string-keyed map the spec calls for: used as
// the VM's string intern set and, reused, as every Class's field/method/
// static tables and every Instance's per-object field table. Keeping one
// implementation in this package (rather than a separate pkg/table) avoids
// a value<->table import cycle, since Class and Instance both embed
// *Table directly.
type Table struct {
	count    int
	entries  []entry
}

type entry struct {
	key   *ObjString // nil means empty; a tombstone is key==tombstoneKey
	value Value
}

// tombstoneKey marks a deleted slot so linear probing doesn't stop short of
// a live entry that hashed past it.
var tombstoneKey = &ObjString{}

const initialTableCapacity = 8
const tableMaxLoad = 0.75

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Count() int { return t.count }

// Get looks up key, returning its value and whether it was present.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if len(t.entries) == 0 {
		return NullValue(), false
	}
	e := t.find(key)
	if e.key == nil || e.key == tombstoneKey {
		return NullValue(), false
	}
	return e.value, true
}

// Set stores value under key, growing the backing array if the load factor
// would be exceeded. Returns true if this added a new key.
func (t *Table) Set(key *ObjString, val Value) bool {
	if len(t.entries) == 0 || float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}
	e := t.find(key)
	isNew := e.key == nil || e.key == tombstoneKey
	if e.key == nil {
		// Tombstones already counted against the load factor when they were
		// created, so only a genuinely fresh slot grows count.
		t.count++
	}
	e.key = key
	e.value = val
	return isNew
}

// Delete replaces key's slot with a tombstone (the shared tombstoneKey
// sentinel) so later probes keep walking past it.
func (t *Table) Delete(key *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e.key == nil {
		return false
	}
	e.key = tombstoneKey
	e.value = BoolValue(true)
	return true
}

// Has reports whether key is present (and not a tombstone).
func (t *Table) Has(key *ObjString) bool {
	_, ok := t.Get(key)
	return ok
}

// ForEach visits every live key/value pair. Mutating the table from inside
// the callback is not supported.
func (t *Table) ForEach(fn func(key *ObjString, val Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && e.key != tombstoneKey {
			fn(e.key, e.value)
		}
	}
}

// CopyInto copies every live entry of t into dst, used by INHERIT to copy a
// parent's method/field tables into a subclass and by ObjInstance
// construction to seed fields from a class's defaults.
func (t *Table) CopyInto(dst *Table) {
	t.ForEach(func(k *ObjString, v Value) { dst.Set(k, v) })
}

// FindString looks up an already-hashed byte sequence without allocating an
// ObjString first; the intern table uses this to decide whether a new
// string literal already exists.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	cap := uint32(len(t.entries))
	idx := hash % cap
	for {
		e := &t.entries[idx]
		if e.key == nil {
			return nil // empty: probe sequence ends, string isn't interned
		} else if e.key != tombstoneKey && e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		idx = (idx + 1) % cap
	}
}

// DeleteUnmarked implements the GC's weak pass: any interned string whose
// mark bit is clear (nothing else reached it during mark) is dropped from
// the table, which is the table's only reference to it.
func (t *Table) DeleteUnmarked() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && e.key != tombstoneKey && !e.key.Marked {
			e.key = tombstoneKey
			e.value = BoolValue(true)
		}
	}
}

func (t *Table) find(key *ObjString) *entry {
	cap := uint32(len(t.entries))
	idx := key.Hash % cap
	var tombstone *entry
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if tombstone != nil {
				return tombstone
			}
			return e
		} else if e.key == tombstoneKey {
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key || (e.key.Hash == key.Hash && e.key.Chars == key.Chars) {
			return e
		}
		idx = (idx + 1) % cap
	}
}

func (t *Table) grow() {
	newCap := len(t.entries) * 2
	if newCap < initialTableCapacity {
		newCap = initialTableCapacity
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for _, e := range old {
		if e.key == nil || e.key == tombstoneKey {
			continue
		}
		dst := t.find(e.key)
		dst.key = e.key
		dst.value = e.value
		t.count++
	}
}

package value

import "testing"

func TestFalsey(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"null", NullValue(), true},
		{"false", BoolValue(false), true},
		{"true", BoolValue(true), false},
		{"zero", NumberValue(0), false},
		{"empty string", ObjValue(internTestString("")), false},
	}
	for _, tt := range tests {
		if got := tt.v.Falsey(); got != tt.want {
			t.Errorf("%s: Falsey() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEqualNumbers(t *testing.T) {
	if !Equal(NumberValue(3), NumberValue(3)) {
		t.Error("expected 3 == 3")
	}
	if Equal(NumberValue(3), NumberValue(4)) {
		t.Error("expected 3 != 4")
	}
}

func TestEqualStringsByContent(t *testing.T) {
	a := &ObjString{Chars: "hi", Hash: HashString("hi")}
	b := &ObjString{Chars: "hi", Hash: HashString("hi")}
	if a == b {
		t.Fatal("test strings should not already be the same pointer")
	}
	if !Equal(ObjValue(a), ObjValue(b)) {
		t.Error("expected uninterned strings with equal contents to compare equal")
	}
}

func TestTableSetGetDelete(t *testing.T) {
	tbl := NewTable()
	key := &ObjString{Chars: "x", Hash: HashString("x")}

	if _, ok := tbl.Get(key); ok {
		t.Fatal("empty table should not contain key")
	}
	if isNew := tbl.Set(key, NumberValue(1)); !isNew {
		t.Error("first Set should report a new key")
	}
	if v, ok := tbl.Get(key); !ok || v.AsNumber() != 1 {
		t.Errorf("Get after Set = %v, %v", v, ok)
	}
	if isNew := tbl.Set(key, NumberValue(2)); isNew {
		t.Error("overwriting Set should report an existing key")
	}
	if !tbl.Delete(key) {
		t.Error("Delete should succeed on a present key")
	}
	if _, ok := tbl.Get(key); ok {
		t.Error("key should be gone after Delete")
	}
	// Re-inserting after a tombstone must still find the key.
	tbl.Set(key, NumberValue(3))
	if v, ok := tbl.Get(key); !ok || v.AsNumber() != 3 {
		t.Errorf("Get after re-Set = %v, %v", v, ok)
	}
}

func TestTableGrowthPreservesEntries(t *testing.T) {
	tbl := NewTable()
	const n = 200
	keys := make([]*ObjString, n)
	for i := 0; i < n; i++ {
		s := string(rune('a' + i%26))
		for j := 0; j < i/26; j++ {
			s += "z"
		}
		keys[i] = &ObjString{Chars: s, Hash: HashString(s)}
		tbl.Set(keys[i], NumberValue(float64(i)))
	}
	for i := 0; i < n; i++ {
		v, ok := tbl.Get(keys[i])
		if !ok || v.AsNumber() != float64(i) {
			t.Fatalf("entry %d (%q) lost after growth: %v %v", i, keys[i].Chars, v, ok)
		}
	}
}

func TestFindString(t *testing.T) {
	tbl := NewTable()
	s := &ObjString{Chars: "hello", Hash: HashString("hello")}
	tbl.Set(s, BoolValue(true))
	if got := tbl.FindString("hello", HashString("hello")); got != s {
		t.Error("FindString should return the interned pointer")
	}
	if got := tbl.FindString("nope", HashString("nope")); got != nil {
		t.Error("FindString should return nil for an absent string")
	}
}

func internTestString(s string) *ObjString {
	return &ObjString{Chars: s, Hash: HashString(s)}
}

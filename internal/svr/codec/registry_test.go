package codec

import "testing"

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	e := Encoding{Name: "test-codec"}
	if err := r.Register(e); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := r.Get("test-codec")
	if !ok || got.Name != "test-codec" {
		t.Fatalf("Get returned %+v, %v", got, ok)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := NewRegistry()
	e := Encoding{Name: "dup"}
	if err := r.Register(e); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(e); err == nil {
		t.Fatalf("expected error registering duplicate name")
	}
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Encoding{}); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(Encoding{Name: "zeta"})
	r.Register(Encoding{Name: "alpha"})
	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestOptionsEquivalentDefault(t *testing.T) {
	e := Encoding{Name: "x"}
	a := map[string]string{"k": "v"}
	b := map[string]string{"k": "v"}
	if !e.OptionsEquivalent(a, b) {
		t.Fatalf("expected equivalent options")
	}
	c := map[string]string{"k": "other"}
	if e.OptionsEquivalent(a, c) {
		t.Fatalf("expected non-equivalent options")
	}
}

func TestOptionsEquivalentCustom(t *testing.T) {
	e := Encoding{Name: "x", Equiv: func(a, b map[string]string) bool { return true }}
	if !e.OptionsEquivalent(map[string]string{"a": "1"}, map[string]string{"b": "2"}) {
		t.Fatalf("custom Equiv should override default")
	}
}

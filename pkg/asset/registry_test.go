package asset

import "testing"

func TestNewValidation(t *testing.T) {
	if _, err := New("", 100, 2); err == nil {
		t.Error("empty symbol accepted")
	}
	if _, err := New("GOLD", 0, 2); err == nil {
		t.Error("zero minimum accepted")
	}
	if _, err := New("GOLD", -5, 2); err == nil {
		t.Error("negative minimum accepted")
	}
	if _, err := New("GOLD", 100, -1); err == nil {
		t.Error("negative decimals accepted")
	}

	a, err := New("GOLD", 100, 2)
	if err != nil {
		t.Fatalf("valid asset rejected: %v", err)
	}
	if a.Status != Listed {
		t.Errorf("new asset status = %v, want Listed", a.Status)
	}
}

func TestAccepts(t *testing.T) {
	a, err := New("GOLD", 100, 2)
	if err != nil {
		t.Fatal(err)
	}

	if a.Accepts(99) {
		t.Error("accepted amount below minimum")
	}
	if !a.Accepts(100) {
		t.Error("rejected amount at minimum")
	}
	if !a.Accepts(101) {
		t.Error("rejected amount above minimum")
	}

	a.Status = Delisted
	if a.Accepts(100) {
		t.Error("delisted asset accepted a deposit")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if r.Exists("GOLD") {
		t.Error("empty registry claims GOLD")
	}
	if _, err := r.Get("GOLD"); err == nil {
		t.Error("empty registry returned GOLD")
	}

	gold, _ := New("GOLD", 100, 2)
	if err := r.Register(gold); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(gold); err == nil {
		t.Error("duplicate symbol accepted")
	}
	if err := r.Register(nil); err == nil {
		t.Error("nil asset accepted")
	}

	silver, _ := New("SILVER", 250, 2)
	if err := r.Register(silver); err != nil {
		t.Fatalf("register silver: %v", err)
	}

	got, err := r.Get("GOLD")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MinOrderAmount != 100 {
		t.Errorf("min = %d, want 100", got.MinOrderAmount)
	}

	if r.Count() != 2 {
		t.Errorf("count = %d, want 2", r.Count())
	}
	if len(r.List()) != 2 {
		t.Errorf("list len = %d, want 2", len(r.List()))
	}
	if !r.Exists("SILVER") {
		t.Error("SILVER missing")
	}
}

func TestRegistrySetStatus(t *testing.T) {
	r := NewRegistry()
	gold, _ := New("GOLD", 100, 2)
	if err := r.Register(gold); err != nil {
		t.Fatal(err)
	}

	if err := r.SetStatus("SILVER", Delisted); err == nil {
		t.Error("set status on unknown symbol accepted")
	}

	if err := r.SetStatus("GOLD", Delisted); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ := r.Get("GOLD")
	if got.Status != Delisted {
		t.Errorf("status = %v, want Delisted", got.Status)
	}
	if got.Accepts(1000) {
		t.Error("delisted asset still accepting")
	}
}

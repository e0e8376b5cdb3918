package switchctl

import (
	"context"
	"testing"
)

func TestMemorySetAndState(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	if err := m.Set(ctx, "Bedroom Light", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	on, known := m.State("bedroom light")
	if !known || !on {
		t.Errorf("State = (%v, %v), want (true, true)", on, known)
	}

	if err := m.Set(ctx, "bedroom light", false); err != nil {
		t.Fatalf("Set off: %v", err)
	}
	if on, _ := m.State("bedroom light"); on {
		t.Error("device still on after Set(false)")
	}

	if _, known := m.State("fan"); known {
		t.Error("never-switched device reported as known")
	}
}

func TestMemoryRejectsEmptyName(t *testing.T) {
	m := NewMemory(nil)
	if err := m.Set(context.Background(), "  ", true); err == nil {
		t.Error("empty device name accepted")
	}
}

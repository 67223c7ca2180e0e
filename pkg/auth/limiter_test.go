package auth

import "testing"

func TestLimiterPerPrincipalBudget(t *testing.T) {
	p := newLimiterPool(SecConfig{RPS: 1, Burst: 2})
	for i := 0; i < 2; i++ {
		if !p.Allow("agent-1") {
			t.Fatalf("burst request %d denied", i)
		}
	}
	if p.Allow("agent-1") {
		t.Fatalf("request over burst allowed")
	}
	// an exhausted principal must not starve the others
	if !p.Allow("agent-2") {
		t.Fatalf("fresh principal denied")
	}
}

func TestLimiterZeroConfigFallsBack(t *testing.T) {
	p := newLimiterPool(SecConfig{})
	for i := 0; i < defaultBurst; i++ {
		if !p.Allow("10.0.0.1") {
			t.Fatalf("default burst request %d denied", i)
		}
	}
	if p.Allow("10.0.0.1") {
		t.Fatalf("request past the default burst allowed")
	}
}

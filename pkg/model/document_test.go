package model

import (
	"testing"
	"time"
)

func TestStampAndTouch(t *testing.T) {
	d := Document{"name": "a"}
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.Stamp(t0)
	if !d.CreatedAt().Equal(t0) || !d.UpdatedAt().Equal(t0) {
		t.Fatalf("stamp mismatch: created=%v updated=%v", d.CreatedAt(), d.UpdatedAt())
	}

	d.Touch(t0.Add(time.Second))
	if !d.UpdatedAt().Equal(t0.Add(time.Second)) {
		t.Fatalf("touch did not advance updated_at")
	}

	// a clock step backwards must not regress _updated_at
	d.Touch(t0.Add(-time.Hour))
	if !d.UpdatedAt().Equal(t0.Add(time.Second)) {
		t.Fatalf("updated_at regressed: %v", d.UpdatedAt())
	}
}

func TestTimeLayoutOrdersLexicographically(t *testing.T) {
	// Trailing fraction zeros must not be trimmed: "…05.12Z" sorts after
	// "…05.125Z" as a string even though it is the earlier instant. The
	// sync watermark and the retention cutoff both compare raw strings.
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := base.Add(120 * time.Millisecond).Format(TimeLayout)
	b := base.Add(125 * time.Millisecond).Format(TimeLayout)
	if !(a < b) {
		t.Fatalf("string order diverged from time order: %q vs %q", a, b)
	}
	if len(a) != len(b) {
		t.Fatalf("layout is not fixed-width: %q vs %q", a, b)
	}

	// legacy trimmed-fraction values still parse
	for _, v := range []string{"2026-01-02T03:04:05.12Z", "2026-01-02T03:04:05Z", a} {
		if _, err := ParseTime(v); err != nil {
			t.Fatalf("ParseTime(%q): %v", v, err)
		}
	}
}

func TestTombstone(t *testing.T) {
	d := Document{"name": "a"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.Stamp(now)
	d.Tombstone(now.Add(time.Minute))

	exp, ok := d.ExpiresAt()
	if !ok {
		t.Fatalf("expected tombstone")
	}
	if exp.Before(d.UpdatedAt()) {
		t.Fatalf("_expires_at %v < _updated_at %v", exp, d.UpdatedAt())
	}
	if !d.IsTombstone() {
		t.Fatalf("IsTombstone false after Tombstone")
	}
	// pre-delete field values are retained for afterDelete hooks
	if d["name"] != "a" {
		t.Fatalf("tombstone dropped field values")
	}
}

func TestStatusOf(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tol := time.Millisecond

	d := Document{}
	d.Stamp(now)
	if got := StatusOf(d, tol); got != StatusCreated {
		t.Fatalf("fresh doc: got %q", got)
	}

	// rounding within the tolerance window still classifies as created
	d[FieldUpdatedAt] = now.Add(500 * time.Microsecond).Format(TimeLayout)
	if got := StatusOf(d, tol); got != StatusCreated {
		t.Fatalf("within tolerance: got %q", got)
	}

	d[FieldUpdatedAt] = now.Add(2 * time.Millisecond).Format(TimeLayout)
	if got := StatusOf(d, tol); got != StatusUpdated {
		t.Fatalf("past tolerance: got %q", got)
	}

	// deleted takes precedence over updated
	d.Tombstone(now.Add(time.Second))
	if got := StatusOf(d, tol); got != StatusDeleted {
		t.Fatalf("tombstone: got %q", got)
	}
}

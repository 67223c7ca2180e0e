package retention

import (
	"testing"
	"time"

	"github.com/stewones/borda-sub001/pkg/config"
	"github.com/stewones/borda-sub001/pkg/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry([]schema.Collection{{
		Name:   "post",
		Fields: []schema.Field{{Name: "_id", Kind: schema.KindIdentifier}},
	}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestNewDefaults(t *testing.T) {
	s, err := New(nil, testRegistry(t), config.RetentionConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.cron != "0 3 * * *" {
		t.Fatalf("default cron = %q", s.cron)
	}
	if s.period != 720*time.Hour {
		t.Fatalf("default period = %s", s.period)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(nil, testRegistry(t), config.RetentionConfig{Cron: "not a cron"}); err == nil {
		t.Fatal("expected invalid cron error")
	}
	if _, err := New(nil, testRegistry(t), config.RetentionConfig{Period: "soon"}); err == nil {
		t.Fatal("expected invalid period error")
	}
	if _, err := New(nil, testRegistry(t), config.RetentionConfig{Period: "-1h"}); err == nil {
		t.Fatal("expected negative period error")
	}
}

package pagination

import "testing"

func TestClampPageSize(t *testing.T) {
	cfg := PageSizeConfig{Default: 100, Max: 500}

	if got := ClampPageSize(0, cfg); got != 100 {
		t.Fatalf("zero page size = %d, want default 100", got)
	}
	if got := ClampPageSize(-5, cfg); got != 100 {
		t.Fatalf("negative page size = %d, want default 100", got)
	}
	if got := ClampPageSize(25, cfg); got != 25 {
		t.Fatalf("in-range page size = %d, want 25", got)
	}
	if got := ClampPageSize(10_000, cfg); got != 500 {
		t.Fatalf("oversize page size = %d, want max 500", got)
	}
	if got := ClampPageSize(0, PageSizeConfig{}); got != 1 {
		t.Fatalf("unconfigured page size = %d, want 1", got)
	}
}

package pricing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCosts(t *testing.T) {
	table := Default()
	tests := []struct {
		op   Operation
		want int64
	}{
		{OpChat, 5},
		{OpPromptSuggestion, 25},
		{OpCodeSuggestion, 50},
		{OpToolSuggestion, 75},
	}
	for _, tt := range tests {
		cost, err := table.CostOf(tt.op)
		if err != nil {
			t.Fatalf("CostOf(%s): %v", tt.op, err)
		}
		if cost != tt.want {
			t.Fatalf("CostOf(%s) = %d, want %d", tt.op, cost, tt.want)
		}
	}
}

func TestUnknownLookups(t *testing.T) {
	table := Default()

	if _, err := table.CostOf("image_generation"); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if _, err := table.PriceOf("ultimate"); !errors.Is(err, ErrUnknownPackage) {
		t.Fatalf("expected ErrUnknownPackage, got %v", err)
	}
}

func TestDefaultPackages(t *testing.T) {
	table := Default()
	pkg, err := table.PriceOf("starter")
	if err != nil {
		t.Fatalf("PriceOf(starter): %v", err)
	}
	if pkg.Tokens != 1000 || pkg.Price != 0.99 {
		t.Fatalf("unexpected starter package %+v", pkg)
	}
	if got := len(table.Packages()); got != 3 {
		t.Fatalf("expected 3 packages, got %d", got)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")
	contents := `
price_per_token: 0.002
costs:
  chat: 9
packages:
  mini:
    tokens: 100
    price: 0.10
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write pricing file: %v", err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cost, _ := table.CostOf(OpChat); cost != 9 {
		t.Fatalf("expected overridden chat cost 9, got %d", cost)
	}
	// Costs absent from the file keep their defaults.
	if cost, _ := table.CostOf(OpCodeSuggestion); cost != 50 {
		t.Fatalf("expected default code cost 50, got %d", cost)
	}
	// A packages section replaces the catalogue wholesale.
	if _, err := table.PriceOf("starter"); !errors.Is(err, ErrUnknownPackage) {
		t.Fatalf("expected starter gone after override, got %v", err)
	}
	if pkg, err := table.PriceOf("mini"); err != nil || pkg.Tokens != 100 {
		t.Fatalf("expected mini package, got %+v err=%v", pkg, err)
	}
	if table.PricePerToken() != 0.002 {
		t.Fatalf("expected price per token 0.002, got %v", table.PricePerToken())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")
	if err := os.WriteFile(path, []byte("costs:\n  chat: -1\n"), 0o644); err != nil {
		t.Fatalf("write pricing file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for negative cost")
	}
}

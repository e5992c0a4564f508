package pricing

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Operation identifies a billable operation kind.
type Operation string

const (
	OpChat             Operation = "chat"
	OpPromptSuggestion Operation = "prompt_suggestion"
	OpCodeSuggestion   Operation = "code_suggestion"
	OpToolSuggestion   Operation = "tool_suggestion"
)

var (
	// ErrUnknownOperation indicates a cost lookup for an unregistered
	// operation kind.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrUnknownPackage indicates a price lookup for an unregistered
	// purchase package.
	ErrUnknownPackage = errors.New("unknown package")
)

// Package is a purchasable bundle of tokens at a fixed price (USD).
type Package struct {
	Tokens int64   `yaml:"tokens" json:"tokens"`
	Price  float64 `yaml:"price" json:"price"`
}

// fileSchema is the on-disk YAML layout of a pricing table.
type fileSchema struct {
	PricePerToken float64            `yaml:"price_per_token"`
	Costs         map[string]int64   `yaml:"costs"`
	Packages      map[string]Package `yaml:"packages"`
}

type snapshot struct {
	costs         map[Operation]int64
	packages      map[string]Package
	pricePerToken float64
}

// Table maps operation kinds to token costs and package names to bundles.
// Lookups read an immutable snapshot, so a Reload never tears an in-flight
// broker operation.
type Table struct {
	snap atomic.Pointer[snapshot]
}

// Default returns a table with the built-in costs and packages.
func Default() *Table {
	t := &Table{}
	t.snap.Store(defaultSnapshot())
	return t
}

// Load reads a pricing table from a YAML file. Entries present in the file
// override the defaults; absent sections keep them.
func Load(path string) (*Table, error) {
	t := Default()
	if err := t.Reload(path); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload replaces the table contents from the YAML file in one atomic swap.
func (t *Table) Reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pricing file: %w", err)
	}
	var file fileSchema
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse pricing file %s: %w", path, err)
	}

	next := defaultSnapshot()
	if file.PricePerToken > 0 {
		next.pricePerToken = file.PricePerToken
	}
	for name, cost := range file.Costs {
		if cost < 0 {
			return fmt.Errorf("pricing file %s: negative cost for %q", path, name)
		}
		next.costs[Operation(name)] = cost
	}
	if len(file.Packages) > 0 {
		next.packages = make(map[string]Package, len(file.Packages))
		for name, pkg := range file.Packages {
			if pkg.Tokens <= 0 || pkg.Price < 0 {
				return fmt.Errorf("pricing file %s: invalid package %q", path, name)
			}
			next.packages[name] = pkg
		}
	}
	t.snap.Store(next)
	return nil
}

// CostOf returns the token cost of an operation kind.
func (t *Table) CostOf(op Operation) (int64, error) {
	snap := t.snap.Load()
	cost, ok := snap.costs[op]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	return cost, nil
}

// PriceOf returns the bundle for a package name.
func (t *Table) PriceOf(name string) (Package, error) {
	snap := t.snap.Load()
	pkg, ok := snap.packages[name]
	if !ok {
		return Package{}, fmt.Errorf("%w: %q", ErrUnknownPackage, name)
	}
	return pkg, nil
}

// Packages returns a copy of the purchasable package catalogue.
func (t *Table) Packages() map[string]Package {
	snap := t.snap.Load()
	out := make(map[string]Package, len(snap.packages))
	for name, pkg := range snap.packages {
		out[name] = pkg
	}
	return out
}

// PricePerToken returns the advertised per-token USD price.
func (t *Table) PricePerToken() float64 {
	return t.snap.Load().pricePerToken
}

func defaultSnapshot() *snapshot {
	return &snapshot{
		pricePerToken: 0.001,
		costs: map[Operation]int64{
			OpChat:             5,
			OpPromptSuggestion: 25,
			OpCodeSuggestion:   50,
			OpToolSuggestion:   75,
		},
		packages: map[string]Package{
			"starter":    {Tokens: 1000, Price: 0.99},
			"pro":        {Tokens: 5000, Price: 4.49},
			"enterprise": {Tokens: 25000, Price: 19.99},
		},
	}
}

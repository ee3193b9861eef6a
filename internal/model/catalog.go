package model

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Catalog fixes the deployment's naming for currency and task kinds and
// lists the legacy names that are still accepted on input.
type Catalog struct {
	// Currencies are the canonical currency kinds, in display order.
	Currencies []string `yaml:"currencies"`
	// CurrencyAliases maps a legacy currency key to its canonical kind.
	CurrencyAliases map[string]string `yaml:"currency_aliases"`
	// LegacyPriceFields maps a legacy scalar price field to the canonical
	// currency it was denominated in.
	LegacyPriceFields map[string]string `yaml:"legacy_price_fields"`
	// Tasks maps a task kind to the currency it credits on completion.
	Tasks map[string]TaskDef `yaml:"tasks"`
	// TaskAliases maps a legacy task kind to its canonical kind.
	TaskAliases map[string]string `yaml:"task_aliases"`
	// DefaultWallet seeds the wallet when the store has none.
	DefaultWallet Wallet `yaml:"default_wallet"`
}

// TaskDef describes what a completed task is worth.
type TaskDef struct {
	Currency string `yaml:"currency"`
	Unit     int64  `yaml:"unit"`
}

// DefaultCatalog is the naming used by the current frontend: "licks" became
// "dishes" and "kiss" is an old spelling of "kisses".
func DefaultCatalog() Catalog {
	return Catalog{
		Currencies: []string{"kisses", "scratches", "massage", "dishes"},
		CurrencyAliases: map[string]string{
			"licks": "dishes",
			"kiss":  "kisses",
		},
		LegacyPriceFields: map[string]string{
			"kissPrice": "kisses",
		},
		Tasks: map[string]TaskDef{
			"kisses":    {Currency: "kisses", Unit: 1},
			"scratches": {Currency: "scratches", Unit: 1},
			"massage":   {Currency: "massage", Unit: 1},
			"dishes":    {Currency: "dishes", Unit: 1},
		},
		TaskAliases: map[string]string{
			"licks": "dishes",
			"kiss":  "kisses",
		},
		DefaultWallet: Wallet{"kisses": 10, "scratches": 5, "massage": 2, "dishes": 1},
	}
}

// LoadCatalog reads a catalog from a YAML file. An empty path returns the default.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks that every alias and task points at a canonical currency.
func (c Catalog) Validate() error {
	if len(c.Currencies) == 0 {
		return fmt.Errorf("catalog: at least one currency is required")
	}
	for legacy, canonical := range c.CurrencyAliases {
		if !c.IsCurrency(canonical) {
			return fmt.Errorf("catalog: alias %q points at unknown currency %q", legacy, canonical)
		}
		if c.IsCurrency(legacy) {
			return fmt.Errorf("catalog: %q is both canonical and an alias", legacy)
		}
	}
	for field, canonical := range c.LegacyPriceFields {
		if !c.IsCurrency(canonical) {
			return fmt.Errorf("catalog: legacy price field %q points at unknown currency %q", field, canonical)
		}
	}
	for kind, def := range c.Tasks {
		if !c.IsCurrency(def.Currency) {
			return fmt.Errorf("catalog: task %q credits unknown currency %q", kind, def.Currency)
		}
		if def.Unit < 0 {
			return fmt.Errorf("catalog: task %q has negative unit", kind)
		}
	}
	for legacy, canonical := range c.TaskAliases {
		if _, ok := c.Tasks[canonical]; !ok {
			return fmt.Errorf("catalog: task alias %q points at unknown task %q", legacy, canonical)
		}
	}
	for kind, v := range c.DefaultWallet {
		if !c.IsCurrency(kind) {
			return fmt.Errorf("catalog: default wallet has unknown currency %q", kind)
		}
		if v < 0 {
			return fmt.Errorf("catalog: default wallet balance for %q is negative", kind)
		}
	}
	return nil
}

// IsCurrency reports whether kind is a canonical currency.
func (c Catalog) IsCurrency(kind string) bool {
	return slices.Contains(c.Currencies, kind)
}

// Currency resolves a canonical or legacy currency name.
func (c Catalog) Currency(kind string) (string, bool) {
	if c.IsCurrency(kind) {
		return kind, true
	}
	canonical, ok := c.CurrencyAliases[kind]
	return canonical, ok
}

// Task resolves a canonical or legacy task name.
func (c Catalog) Task(kind string) (string, TaskDef, bool) {
	if def, ok := c.Tasks[kind]; ok {
		return kind, def, true
	}
	canonical, ok := c.TaskAliases[kind]
	if !ok {
		return "", TaskDef{}, false
	}
	def, ok := c.Tasks[canonical]
	return canonical, def, ok
}

// TaskKinds returns the canonical task kinds, sorted.
func (c Catalog) TaskKinds() []string {
	kinds := make([]string, 0, len(c.Tasks))
	for k := range c.Tasks {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Package normalize rewrites legacy record shapes into the canonical shape.
//
// It is the only place that knows about old field names. The service runs
// every record through it when reading from the store and when accepting a
// write from a client, so the rest of the code only ever sees canonical data.
// All functions are total and idempotent: normalizing a canonical record
// returns an equal record.
package normalize

import (
	"maps"
	"math"
	"slices"

	"github.com/ashita-ai/menusync/internal/model"
)

// Normalizer applies a catalog's rename rules.
type Normalizer struct {
	catalog model.Catalog
	// legacyFields is the sorted key set of catalog.LegacyPriceFields, so
	// that a record carrying several legacy fields resolves deterministically.
	legacyFields []string
}

// New creates a Normalizer for the given catalog.
func New(c model.Catalog) *Normalizer {
	fields := slices.Collect(maps.Keys(c.LegacyPriceFields))
	slices.Sort(fields)
	return &Normalizer{catalog: c, legacyFields: fields}
}

// Catalog returns the catalog the normalizer was built with.
func (n *Normalizer) Catalog() model.Catalog {
	return n.catalog
}

// Item normalizes a raw item object.
//
// Rules, in order:
//  1. A legacy scalar price with no prices map becomes a prices map holding
//     that value under its canonical currency and zero for the others. The
//     legacy field is always removed.
//  2. Legacy currency keys inside prices are renamed to canonical keys. When
//     both spellings are present the canonical value wins.
//  3. Anything else is passed through.
func (n *Normalizer) Item(raw map[string]any) model.CatalogItem {
	rec := maps.Clone(raw)
	if rec == nil {
		rec = map[string]any{}
	}

	if p, ok := rec[model.FieldPrices]; !ok || p == nil {
		for _, field := range n.legacyFields {
			amount, ok := model.NumberFromAny(rec[field])
			if !ok {
				continue
			}
			prices := make(map[string]any, len(n.catalog.Currencies))
			for _, c := range n.catalog.Currencies {
				prices[c] = 0.0
			}
			prices[n.catalog.LegacyPriceFields[field]] = amount
			rec[model.FieldPrices] = prices
			break
		}
	}
	for _, field := range n.legacyFields {
		delete(rec, field)
	}

	it := model.ItemFromRaw(rec)
	it.Prices = n.Prices(it.Prices)
	return it
}

// Prices renames legacy currency keys in a prices map.
func (n *Normalizer) Prices(prices map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(prices))
	for k, v := range prices {
		if canonical, ok := n.catalog.CurrencyAliases[k]; ok {
			if _, has := prices[canonical]; !has {
				out[canonical] = v
			}
			continue
		}
		out[k] = v
	}
	return out
}

// Wallet normalizes a raw wallet object. Non-numeric values and the store's
// row id are dropped, fractions are truncated and negatives floored at zero.
func (n *Normalizer) Wallet(raw map[string]any) model.Wallet {
	return model.Wallet(n.counters(raw, n.catalog.CurrencyAliases))
}

// Tasks normalizes a raw task counter object with the same rules as Wallet.
func (n *Normalizer) Tasks(raw map[string]any) model.Tasks {
	return model.Tasks(n.counters(raw, n.catalog.TaskAliases))
}

// WalletValues renames legacy keys in an already typed wallet.
func (n *Normalizer) WalletValues(w model.Wallet) model.Wallet {
	raw := make(map[string]any, len(w))
	for k, v := range w {
		raw[k] = v
	}
	return n.Wallet(raw)
}

func (n *Normalizer) counters(raw map[string]any, aliases map[string]string) map[string]int64 {
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		if k == "id" {
			continue
		}
		f, ok := model.NumberFromAny(v)
		if !ok || math.IsNaN(f) {
			continue
		}
		amount := clampCount(f)
		if canonical, ok := aliases[k]; ok {
			if _, has := raw[canonical]; !has {
				out[canonical] = amount
			}
			continue
		}
		out[k] = amount
	}
	return out
}

func clampCount(f float64) int64 {
	switch {
	case f <= 0:
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(f)
	}
}

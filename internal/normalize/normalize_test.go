package normalize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/menusync/internal/model"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	raw, err := model.DecodeObject([]byte(s))
	require.NoError(t, err)
	return raw
}

func TestItem(t *testing.T) {
	n := New(model.DefaultCatalog())

	tests := []struct {
		name string
		in   string
		want model.CatalogItem
	}{
		{
			name: "legacy scalar price becomes prices map",
			in:   `{"id":"1","name":"Pancakes","kissPrice":3}`,
			want: model.CatalogItem{
				ID:     "1",
				Name:   "Pancakes",
				Prices: map[string]float64{"kisses": 3, "scratches": 0, "massage": 0, "dishes": 0},
			},
		},
		{
			name: "prices wins over legacy scalar",
			in:   `{"id":"1","kissPrice":9,"prices":{"kisses":2}}`,
			want: model.CatalogItem{ID: "1", Prices: map[string]float64{"kisses": 2}},
		},
		{
			name: "null prices is treated as absent",
			in:   `{"id":"1","kissPrice":4,"prices":null}`,
			want: model.CatalogItem{
				ID:     "1",
				Prices: map[string]float64{"kisses": 4, "scratches": 0, "massage": 0, "dishes": 0},
			},
		},
		{
			name: "legacy currency keys renamed",
			in:   `{"id":"1","prices":{"licks":2,"kiss":1}}`,
			want: model.CatalogItem{ID: "1", Prices: map[string]float64{"dishes": 2, "kisses": 1}},
		},
		{
			name: "canonical key wins over legacy key",
			in:   `{"id":"1","prices":{"licks":2,"dishes":5}}`,
			want: model.CatalogItem{ID: "1", Prices: map[string]float64{"dishes": 5}},
		},
		{
			name: "unknown fields pass through",
			in:   `{"id":"1","spicy":true,"tags":["hot"]}`,
			want: model.CatalogItem{
				ID:     "1",
				Prices: map[string]float64{},
				Extra:  map[string]any{"spicy": true, "tags": []any{"hot"}},
			},
		},
		{
			name: "numeric id becomes string",
			in:   `{"id":42}`,
			want: model.CatalogItem{ID: "42", Prices: map[string]float64{}},
		},
		{
			name: "non-numeric price dropped",
			in:   `{"id":"1","prices":{"kisses":"two","dishes":1}}`,
			want: model.CatalogItem{ID: "1", Prices: map[string]float64{"dishes": 1}},
		},
		{
			name: "non-numeric legacy scalar ignored and removed",
			in:   `{"id":"1","kissPrice":"free"}`,
			want: model.CatalogItem{ID: "1", Prices: map[string]float64{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Item(decode(t, tt.in))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestItem_LegacyFieldNeverReappears(t *testing.T) {
	n := New(model.DefaultCatalog())

	it := n.Item(decode(t, `{"id":"1","name":"Tea","kissPrice":2}`))
	out, err := json.Marshal(it)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "kissPrice")
	assert.JSONEq(t, `{"id":"1","name":"Tea","prices":{"kisses":2,"scratches":0,"massage":0,"dishes":0}}`, string(out))
}

func TestWallet(t *testing.T) {
	n := New(model.DefaultCatalog())

	tests := []struct {
		name string
		in   string
		want model.Wallet
	}{
		{"canonical", `{"kisses":3,"dishes":1}`, model.Wallet{"kisses": 3, "dishes": 1}},
		{"row id dropped", `{"id":1,"kisses":3}`, model.Wallet{"kisses": 3}},
		{"legacy keys renamed", `{"licks":2,"kiss":4}`, model.Wallet{"dishes": 2, "kisses": 4}},
		{"canonical wins", `{"licks":2,"dishes":7}`, model.Wallet{"dishes": 7}},
		{"negative floored", `{"kisses":-5}`, model.Wallet{"kisses": 0}},
		{"fraction truncated", `{"kisses":2.9}`, model.Wallet{"kisses": 2}},
		{"non-numeric dropped", `{"kisses":"lots","scratches":null}`, model.Wallet{}},
		{"huge clamps", `{"kisses":1e300}`, model.Wallet{"kisses": math.MaxInt64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Wallet(decode(t, tt.in)))
		})
	}
}

func TestTasks_UsesTaskAliases(t *testing.T) {
	n := New(model.DefaultCatalog())
	assert.Equal(t, model.Tasks{"dishes": 4, "kisses": 1}, n.Tasks(decode(t, `{"licks":4,"kiss":1}`)))
}

func TestWallet_NilIsEmpty(t *testing.T) {
	n := New(model.DefaultCatalog())
	assert.Equal(t, model.Wallet{}, n.Wallet(nil))
	assert.Equal(t, model.CatalogItem{Prices: map[string]float64{}}, n.Item(nil))
}

// keys mixes canonical, legacy and unknown names.
var keys = []string{"kisses", "kiss", "dishes", "licks", "scratches", "massage", "gold", "kissPrice", "name", "id"}

func genRecord() gopter.Gen {
	key := gen.IntRange(0, len(keys)-1).Map(func(i int) string { return keys[i] })
	return gen.MapOf(key, gen.Float64Range(-100, 100)).
		Map(func(m map[string]float64) map[string]any {
			out := make(map[string]any, len(m))
			for k, v := range m {
				out[k] = v
			}
			return out
		})
}

func TestProperties(t *testing.T) {
	n := New(model.DefaultCatalog())
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("wallet normalization is idempotent", prop.ForAll(
		func(raw map[string]any) bool {
			once := n.Wallet(raw)
			return assert.ObjectsAreEqual(once, n.WalletValues(once))
		},
		genRecord(),
	))

	properties.Property("item normalization is idempotent", prop.ForAll(
		func(prices, top map[string]any) bool {
			raw := map[string]any{"id": "x"}
			for k, v := range top {
				if k != "id" && k != "name" {
					raw[k] = v
				}
			}
			if len(prices) > 0 {
				raw["prices"] = prices
			}
			once := n.Item(raw)
			twice := n.Item(once.Raw())
			return assert.ObjectsAreEqual(once, twice)
		},
		genRecord(), genRecord(),
	))

	properties.Property("normalized items carry no legacy names", prop.ForAll(
		func(prices map[string]any) bool {
			it := n.Item(map[string]any{"id": "x", "prices": prices, "kissPrice": 1.0})
			if _, ok := it.Extra["kissPrice"]; ok {
				return false
			}
			for k := range it.Prices {
				if _, legacy := n.Catalog().CurrencyAliases[k]; legacy {
					return false
				}
			}
			return true
		},
		genRecord(),
	))

	properties.TestingRun(t)
}

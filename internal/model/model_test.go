package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    ItemID
		wantErr bool
	}{
		{`"abc"`, "abc", false},
		{`42`, "42", false},
		{`1.5`, "1.5", false},
		{`null`, "", false},
		{`true`, "", true},
		{`{}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id ItemID
			err := json.Unmarshal([]byte(tt.in), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCatalogItem_JSONKeepsExtraFields(t *testing.T) {
	in := `{"id":7,"name":"Waffles","category":"breakfast","prices":{"kisses":2},"vegan":true,"name_fr":"Gaufres"}`

	var it CatalogItem
	require.NoError(t, json.Unmarshal([]byte(in), &it))
	assert.Equal(t, ItemID("7"), it.ID)
	assert.Equal(t, "breakfast", it.Category)
	assert.Equal(t, map[string]any{"vegan": true, "name_fr": "Gaufres"}, it.Extra)

	out, err := json.Marshal(it)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"7","name":"Waffles","category":"breakfast","prices":{"kisses":2},"vegan":true,"name_fr":"Gaufres"}`, string(out))
}

func TestItemFromRaw_WrongTypesGoToExtra(t *testing.T) {
	it := ItemFromRaw(map[string]any{"id": "a", "name": 12.0, "prices": "free"})
	assert.Equal(t, "", it.Name)
	assert.Equal(t, map[string]float64{}, it.Prices)
	assert.Equal(t, map[string]any{"name": 12.0, "prices": "free"}, it.Extra)
}

func TestSelection(t *testing.T) {
	var s Selection
	s = s.With("a").With("b").With("a")
	assert.Equal(t, Selection{"a", "b"}, s)
	assert.True(t, s.Contains("b"))

	without := s.Without("a")
	assert.Equal(t, Selection{"b"}, without)
	assert.Equal(t, Selection{"a", "b"}, s, "Without does not modify the receiver")
}

func TestState_JSONShape(t *testing.T) {
	s := State{
		Items:     []CatalogItem{{ID: "1", Name: "x", Prices: map[string]float64{}}},
		Wallet:    Wallet{"kisses": 1},
		Tasks:     Tasks{},
		Selection: Selection{},
	}
	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"items":[{"id":"1","name":"x","prices":{}}],
		"wallet":{"kisses":1},
		"tasks":{},
		"selection":[],
		"lastUpdated":"0001-01-01T00:00:00Z"
	}`, string(out))
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())

	kind, ok := c.Currency("licks")
	assert.True(t, ok)
	assert.Equal(t, "dishes", kind)

	kind, def, ok := c.Task("kiss")
	assert.True(t, ok)
	assert.Equal(t, "kisses", kind)
	assert.Equal(t, TaskDef{Currency: "kisses", Unit: 1}, def)

	_, ok = c.Currency("gold")
	assert.False(t, ok)
	assert.Equal(t, []string{"dishes", "kisses", "massage", "scratches"}, c.TaskKinds())
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
currencies: [kiss, massage]
currency_aliases:
  kisses: kiss
legacy_price_fields:
  kissPrice: kiss
tasks:
  kiss: {currency: kiss, unit: 2}
  rub: {currency: massage, unit: 1}
task_aliases:
  massage: rub
default_wallet:
  kiss: 5
  massage: 0
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"kiss", "massage"}, c.Currencies)
	assert.Equal(t, Wallet{"kiss": 5, "massage": 0}, c.DefaultWallet)

	kind, def, ok := c.Task("massage")
	assert.True(t, ok)
	assert.Equal(t, "rub", kind)
	assert.Equal(t, "massage", def.Currency)
}

func TestLoadCatalog_EmptyPathIsDefault(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), c)
}

func TestCatalog_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Catalog)
	}{
		{"no currencies", func(c *Catalog) { c.Currencies = nil }},
		{"alias to unknown", func(c *Catalog) { c.CurrencyAliases["x"] = "gold" }},
		{"alias shadows canonical", func(c *Catalog) { c.CurrencyAliases["dishes"] = "kisses" }},
		{"legacy field to unknown", func(c *Catalog) { c.LegacyPriceFields["goldPrice"] = "gold" }},
		{"task to unknown currency", func(c *Catalog) { c.Tasks["mine"] = TaskDef{Currency: "gold"} }},
		{"negative unit", func(c *Catalog) { c.Tasks["mine"] = TaskDef{Currency: "kisses", Unit: -1} }},
		{"task alias to unknown", func(c *Catalog) { c.TaskAliases["x"] = "nope" }},
		{"negative default balance", func(c *Catalog) { c.DefaultWallet["kisses"] = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCatalog()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// ItemID identifies a catalog item. It is always a string internally;
// JSON numbers are accepted on input because older clients used numeric IDs.
type ItemID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ItemID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("item id must be a string or a number: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

// CatalogItem is a single menu entry in canonical shape.
// Fields the service does not know about are kept in Extra and written back
// unchanged, so newer clients can add attributes without a server release.
type CatalogItem struct {
	ID          ItemID
	Name        string
	Description string
	Image       string
	Category    string
	Prices      map[string]float64
	Extra       map[string]any
}

// Known item field names.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldDescription = "description"
	FieldImage       = "image"
	FieldCategory    = "category"
	FieldPrices      = "prices"
)

// Raw returns the item as a generic JSON object, the shape stored in the
// external store and accepted by the normalizer.
func (it CatalogItem) Raw() map[string]any {
	raw := make(map[string]any, len(it.Extra)+6)
	maps.Copy(raw, it.Extra)
	raw[FieldID] = string(it.ID)
	raw[FieldName] = it.Name
	if it.Description != "" {
		raw[FieldDescription] = it.Description
	}
	if it.Image != "" {
		raw[FieldImage] = it.Image
	}
	if it.Category != "" {
		raw[FieldCategory] = it.Category
	}
	prices := make(map[string]any, len(it.Prices))
	for k, v := range it.Prices {
		prices[k] = v
	}
	raw[FieldPrices] = prices
	return raw
}

// Clone returns a deep copy of the item's maps.
func (it CatalogItem) Clone() CatalogItem {
	out := it
	if it.Prices != nil {
		out.Prices = maps.Clone(it.Prices)
	}
	if it.Extra != nil {
		out.Extra = maps.Clone(it.Extra)
	}
	return out
}

// MarshalJSON writes the item as a flat object with Extra fields inlined.
func (it CatalogItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.Raw())
}

// UnmarshalJSON reads a flat object. It does not apply any schema
// normalization; callers that accept legacy shapes go through the normalizer.
func (it *CatalogItem) UnmarshalJSON(b []byte) error {
	raw, err := DecodeObject(b)
	if err != nil {
		return err
	}
	*it = ItemFromRaw(raw)
	return nil
}

// ItemFromRaw maps a generic JSON object onto a CatalogItem. Known fields
// with an unexpected type are left in Extra rather than dropped.
func ItemFromRaw(raw map[string]any) CatalogItem {
	var it CatalogItem
	extra := make(map[string]any)
	for k, v := range raw {
		switch k {
		case FieldID:
			id, ok := IDFromAny(v)
			if !ok {
				extra[k] = v
				continue
			}
			it.ID = id
		case FieldName, FieldDescription, FieldImage, FieldCategory:
			s, ok := v.(string)
			if !ok {
				if v != nil {
					extra[k] = v
				}
				continue
			}
			switch k {
			case FieldName:
				it.Name = s
			case FieldDescription:
				it.Description = s
			case FieldImage:
				it.Image = s
			case FieldCategory:
				it.Category = s
			}
		case FieldPrices:
			m, ok := v.(map[string]any)
			if !ok {
				if v != nil {
					extra[k] = v
				}
				continue
			}
			it.Prices = make(map[string]float64, len(m))
			for kind, amount := range m {
				if f, ok := NumberFromAny(amount); ok {
					it.Prices[kind] = f
				}
			}
		default:
			extra[k] = v
		}
	}
	if it.Prices == nil {
		it.Prices = map[string]float64{}
	}
	if len(extra) > 0 {
		it.Extra = extra
	}
	return it
}

// IDFromAny converts a decoded JSON value to an ItemID.
func IDFromAny(v any) (ItemID, bool) {
	switch t := v.(type) {
	case string:
		return ItemID(t), true
	case json.Number:
		return ItemID(t.String()), true
	case float64:
		return ItemID(strconv.FormatFloat(t, 'f', -1, 64)), true
	case int:
		return ItemID(strconv.Itoa(t)), true
	case int64:
		return ItemID(strconv.FormatInt(t, 10)), true
	case nil:
		return "", true
	default:
		return "", false
	}
}

// NumberFromAny converts a decoded JSON number to float64.
func NumberFromAny(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// DecodeObject decodes a JSON object into a generic map.
func DecodeObject(b []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return raw, nil
}

// ItemIDs returns the identifiers of items in order.
func ItemIDs(items []CatalogItem) []ItemID {
	ids := make([]ItemID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

package oracle

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal decodes oracle prices whether the feed sends them as JSON strings
// or numbers.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		d.Decimal = decimal.Zero
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		val, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		d.Decimal = val
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		d.Decimal = decimal.NewFromFloat(f)
		return nil
	}
	return fmt.Errorf("invalid decimal: %s", string(b))
}

func parsePrice(body []byte) (decimal.Decimal, error) {
	var resp struct {
		Price Decimal `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && !resp.Price.Decimal.IsZero() {
		return resp.Price.Decimal, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, err
	}
	if priceRaw, ok := raw["price"]; ok {
		var val Decimal
		if err := json.Unmarshal(priceRaw, &val); err != nil {
			return decimal.Zero, err
		}
		return val.Decimal, nil
	}
	return decimal.Zero, fmt.Errorf("price not found in response")
}

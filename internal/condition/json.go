package condition

import (
	"bytes"
	"encoding/json"

	"github.com/koustreak/dbkit/internal/errs"
)

// DecodeJSON decodes a DSL value written as JSON: arrays for operator forms,
// objects for hash conditions and strings for raw SQL. Integral numbers
// become int64 and the rest float64. Empty input and null decode to nil.
//
// The result is meant for Parse:
//
//	v, err := condition.DecodeJSON([]byte(`["IN", "id", [1, 2, 3]]`))
func DecodeJSON(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidArgument, "invalid condition JSON", err)
	}
	if dec.More() {
		return nil, errs.New(errs.ErrKindInvalidArgument, "invalid condition JSON: trailing data")
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = normalizeNumbers(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = normalizeNumbers(x[k])
		}
	}
	return v
}

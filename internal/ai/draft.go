package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueKind tells how a draft field was present in the reply.
type ValueKind int

const (
	Absent ValueKind = iota
	Null
	Text
	Number
)

// Value is one scalar field of the reply. It keeps the literal so numbers
// are never rounded through float64.
type Value struct {
	Kind ValueKind
	Raw  string
}

// UnmarshalJSON accepts null, strings, numbers and booleans (kept as text).
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = Value{Kind: Null}
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value{Kind: Text, Raw: s}
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*v = Value{Kind: Text, Raw: string(b)}
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("draft value %s: %w", b, err)
		}
		*v = Value{Kind: Number, Raw: n.String()}
	}
	return nil
}

// MarshalJSON writes the value back in its original form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case Text:
		return json.Marshal(v.Raw)
	case Number:
		return []byte(v.Raw), nil
	default:
		return []byte("null"), nil
	}
}

// Missing reports whether the field is absent or null.
func (v Value) Missing() bool { return v.Kind == Absent || v.Kind == Null }

// String returns the literal, or "" when missing.
func (v Value) String() string { return v.Raw }

// DraftRecord is the reasoning service's unvalidated view of the invoice.
type DraftRecord struct {
	Number      Value       `json:"M_fe_num"`
	Date        Value       `json:"M_fe_date"`
	Currency    Value       `json:"M_fe_devise"`
	NetWeight   Value       `json:"M_fe_Pnet"`
	GrossWeight Value       `json:"M_fe_Pbrute"`
	TotalValue  Value       `json:"M_fe_valDev"`
	Items       []DraftItem `json:"items"`
}

// DraftItem is one line of the draft.
type DraftItem struct {
	PaymentFlag        Value `json:"AvecSansPaiment"`
	ClassificationCode Value `json:"M_fl_Ngp"`
	ArticleCode        Value `json:"M_fl_art"`
	Description        Value `json:"M_fl_desig"`
	OriginCountry      Value `json:"M_fl_orig"`
	Quantity           Value `json:"quantity"`
	Unit               Value `json:"M_fl_unite"`
	NetWeight          Value `json:"M_fl_PNet"`
	GrossWeight        Value `json:"M_fl_PBrut"`
	Value              Value `json:"M_fl_valDev"`
}

var (
	headerFields = []string{"M_fe_num", "M_fe_date", "M_fe_devise", "M_fe_Pnet", "M_fe_Pbrute", "M_fe_valDev"}
	itemFields   = []string{
		"AvecSansPaiment", "M_fl_Ngp", "M_fl_art", "M_fl_desig", "M_fl_orig",
		"quantity", "M_fl_unite", "M_fl_PNet", "M_fl_PBrut", "M_fl_valDev",
	}
)

// draftSchema describes the reply shape: an object whose known fields are
// scalars and whose items, if any, are objects of scalars. Unknown keys are
// tolerated.
func draftSchema() map[string]any {
	scalar := map[string]any{"type": []string{"string", "number", "boolean", "null"}}

	itemProps := map[string]any{}
	for _, f := range itemFields {
		itemProps[f] = scalar
	}
	props := map[string]any{
		"items": map[string]any{
			"type": []string{"array", "null"},
			"items": map[string]any{
				"type":       "object",
				"properties": itemProps,
			},
		},
	}
	for _, f := range headerFields {
		props[f] = scalar
	}
	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	}
}

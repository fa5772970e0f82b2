package v1alpha1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/l7mp/windowfields/pkg/expression"
)

// SetWindowFields declares a window stage: the documents of the input stream are grouped into
// partitions by PartitionBy, ordered by SortBy within each partition, and each document is
// extended with the fields in Output computed over a window of the partition.
//
// +kubebuilder:object:generate=false
type SetWindowFields struct {
	// PartitionBy is the expression grouping the documents into partitions. Optional: if
	// absent or null, the entire input is a single partition.
	//
	// +kubebuilder:validation:Schemaless
	// +kubebuilder:pruning:PreserveUnknownFields
	PartitionBy *expression.Expression `json:"partitionBy,omitempty"`
	// SortBy is the order of the documents within a partition. Required for document windows
	// other than ["unbounded", "unbounded"]. The input must already be sorted this way.
	SortBy SortSpec `json:"sortBy,omitempty"`
	// Output maps the output field names to the windowed aggregates computing them.
	Output map[string]OutputField `json:"output"`
}

// SortKey is a single field of a sort specification. Order is 1 for ascending and -1 for
// descending order.
type SortKey struct {
	Field string
	Order int64
}

// SortSpec is an ordered list of sort keys. It is given either as an object, e.g., {"t": 1,
// "x": -1}, in which case the key order of the JSON input is kept, or as a list of single-key
// objects, e.g., [{"t": 1}, {"x": -1}].
//
// +kubebuilder:object:generate=false
type SortSpec []SortKey

// Fields returns the field names in sort order.
func (s SortSpec) Fields() []string {
	ret := make([]string, len(s))
	for i := range s {
		ret[i] = s[i].Field
	}
	return ret
}

// UnmarshalJSON parses a sort specification, keeping the order of the keys.
func (s *SortSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}

	// list form
	var rawArray []json.RawMessage
	if err := json.Unmarshal(data, &rawArray); err == nil {
		ret := SortSpec{}
		for _, raw := range rawArray {
			keys, err := decodeSortObject(raw)
			if err != nil {
				return err
			}
			ret = append(ret, keys...)
		}
		*s = ret
		return nil
	}

	keys, err := decodeSortObject(data)
	if err != nil {
		return err
	}
	*s = keys

	return nil
}

// decodeSortObject walks the tokens of a JSON object so that the key order is preserved.
func decodeSortObject(data []byte) (SortSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid sort specification %q: %w", string(data), err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("invalid sort specification %q: expected an object", string(data))
	}

	ret := SortSpec{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid sort specification %q: %w", string(data), err)
		}
		field, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid sort specification %q: expected a field name",
				string(data))
		}

		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, fmt.Errorf("invalid sort order for field %q: %w", field, err)
		}
		order, err := n.Int64()
		if err != nil || (order != 1 && order != -1) {
			return nil, fmt.Errorf("invalid sort order for field %q: expected 1 or -1, got %s",
				field, n.String())
		}

		ret = append(ret, SortKey{Field: field, Order: order})
	}

	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid sort specification %q: %w", string(data), err)
	}

	return ret, nil
}

// MarshalJSON writes the sort specification as an object in key order.
func (s SortSpec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", k.Order)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// OutputField declares a single output field: an accumulator applied to an argument expression
// over a window, e.g., {"$sum": "$v", "window": {"documents": ["unbounded", "current"]}}.
//
// +kubebuilder:object:generate=false
type OutputField struct {
	// Operator is the accumulator, e.g., "$sum" or "@sum".
	Operator string
	// Argument is the expression evaluated on each document of the window.
	Argument expression.Expression
	// Window is the frame of the aggregate. Optional: defaults to the entire partition.
	Window *Window
	// Extra holds any further accumulator keys found in the declaration.
	Extra []string
}

// Window is a window frame declaration.
type Window struct {
	// Documents is a pair of [lower, upper] bounds, each "unbounded", "current" or an integer
	// offset relative to the current document.
	Documents []any `json:"documents,omitempty"`
	// Range is a value-based window. Not supported.
	Range []any `json:"range,omitempty"`
	// Unit is the time unit of a value-based window. Not supported.
	Unit string `json:"unit,omitempty"`
}

// UnmarshalJSON parses an output field declaration.
func (o *OutputField) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid output field %q: %w", string(data), err)
	}

	ret := OutputField{}
	ops := []string{}
	for k, v := range raw {
		if k == "window" {
			w := Window{}
			if err := json.Unmarshal(v, &w); err != nil {
				return fmt.Errorf("invalid window %q: %w", string(v), err)
			}
			ret.Window = &w
			continue
		}
		ops = append(ops, k)
	}

	if len(ops) == 0 {
		return fmt.Errorf("invalid output field %q: no accumulator", string(data))
	}

	sort.Strings(ops)
	ret.Operator = ops[0]
	ret.Extra = ops[1:]
	if len(ret.Extra) == 0 {
		ret.Extra = nil
	}

	if err := json.Unmarshal(raw[ret.Operator], &ret.Argument); err != nil {
		return fmt.Errorf("invalid argument for accumulator %q: %w", ret.Operator, err)
	}

	*o = ret
	return nil
}

// MarshalJSON writes the output field in declaration form.
func (o OutputField) MarshalJSON() ([]byte, error) {
	ret := map[string]any{o.Operator: &o.Argument}
	if o.Window != nil {
		ret["window"] = o.Window
	}
	return json.Marshal(ret)
}

// OutputFields returns the output field names in sorted order.
func (s *SetWindowFields) OutputFields() []string {
	ret := make([]string, 0, len(s.Output))
	for k := range s.Output {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

func (s *SetWindowFields) String() string {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("%#v", s)
	}
	return string(b)
}

// DeepCopyInto is a manual deepcopy implementation for SetWindowFields since it contains
// expressions.
func (in *SetWindowFields) DeepCopyInto(out *SetWindowFields) {
	*out = *in
	out.PartitionBy = in.PartitionBy.DeepCopy()
	if in.SortBy != nil {
		out.SortBy = make(SortSpec, len(in.SortBy))
		copy(out.SortBy, in.SortBy)
	}
	if in.Output != nil {
		out.Output = make(map[string]OutputField, len(in.Output))
		for k, v := range in.Output {
			o := v
			o.Argument = *v.Argument.DeepCopy()
			if v.Window != nil {
				w := *v.Window
				w.Documents = append([]any(nil), v.Window.Documents...)
				w.Range = append([]any(nil), v.Window.Range...)
				o.Window = &w
			}
			o.Extra = append([]string(nil), v.Extra...)
			out.Output[k] = o
		}
	}
}

// DeepCopy is a manual deepcopy implementation for SetWindowFields.
func (in *SetWindowFields) DeepCopy() *SetWindowFields {
	if in == nil {
		return nil
	}
	out := new(SetWindowFields)
	in.DeepCopyInto(out)
	return out
}

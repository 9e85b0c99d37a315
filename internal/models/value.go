package models

type ValueKind string

const (
	ValueNull   ValueKind = "null"
	ValueString ValueKind = "string"
	ValueNumber ValueKind = "number"
	ValueBool   ValueKind = "bool"
	ValueList   ValueKind = "list"
	ValueMap    ValueKind = "map"
)

// Value is a sanitized free-form value. Import files carry untyped data maps;
// instead of storing raw interface{} trees we store this small tagged union,
// built only by the import sanitizer so no operator-injection keys survive.
type Value struct {
	Kind ValueKind        `bson:"kind" json:"kind"`
	Str  string           `bson:"str,omitempty" json:"str,omitempty"`
	Num  float64          `bson:"num,omitempty" json:"num,omitempty"`
	Bool bool             `bson:"bool,omitempty" json:"bool,omitempty"`
	List []Value          `bson:"list,omitempty" json:"list,omitempty"`
	Map  map[string]Value `bson:"map,omitempty" json:"map,omitempty"`
}

func StringValue(s string) Value  { return Value{Kind: ValueString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Num: n} }
func BoolValue(b bool) Value      { return Value{Kind: ValueBool, Bool: b} }
func NullValue() Value            { return Value{Kind: ValueNull} }

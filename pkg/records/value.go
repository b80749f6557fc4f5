package records

import (
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/language"
)

// Kind is the discriminator of a Value.
type Kind string

// Value kinds.
const (
	KindString   Kind = "string"
	KindQuantity Kind = "quantity"
	KindTime     Kind = "time"
	KindText     Kind = "text"
	KindItem     Kind = "item"
)

// Precision of a time value. The numbers follow the usual structured-data
// convention where larger is finer.
type Precision int

// Supported time precisions.
const (
	PrecisionYear  Precision = 9
	PrecisionMonth Precision = 10
	PrecisionDay   Precision = 11
)

// String returns the precision name.
func (p Precision) String() string {
	switch p {
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	default:
		return fmt.Sprintf("precision(%d)", int(p))
	}
}

// Date is a calendar date with a precision. Fields finer than the precision
// are zero after normalization.
type Date struct {
	Year      int       `json:"year" yaml:"year"`
	Month     int       `json:"month,omitempty" yaml:"month,omitempty"`
	Day       int       `json:"day,omitempty" yaml:"day,omitempty"`
	Precision Precision `json:"precision" yaml:"precision"`
}

func (d Date) normalized() Date {
	switch d.Precision {
	case PrecisionYear:
		d.Month, d.Day = 0, 0
	case PrecisionMonth:
		d.Day = 0
	}
	return d
}

// String renders the date at its precision (2006, 2006-01 or 2006-01-02).
func (d Date) String() string {
	d = d.normalized()
	switch d.Precision {
	case PrecisionYear:
		return fmt.Sprintf("%04d", d.Year)
	case PrecisionMonth:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
}

// Value is a tagged union over the value kinds a statement, qualifier or
// reference property can hold. Only the fields relevant to Kind are set.
type Value struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// String holds the literal for KindString and the item id for KindItem.
	String string `json:"string,omitempty" yaml:"string,omitempty"`

	// Amount is the canonical decimal amount of a quantity.
	Amount string `json:"amount,omitempty" yaml:"amount,omitempty"`
	Unit   ItemID `json:"unit,omitempty" yaml:"unit,omitempty"`

	Time *Date `json:"time,omitempty" yaml:"time,omitempty"`

	Text     string `json:"text,omitempty" yaml:"text,omitempty"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

// NewString creates a string value.
func NewString(s string) Value {
	return Value{Kind: KindString, String: s}
}

// NewItem creates an item reference value.
func NewItem(id ItemID) Value {
	return Value{Kind: KindItem, String: string(id)}
}

// NewQuantity creates a quantity from a decimal literal such as "12" or
// "12.50". Amounts that do not parse are rejected.
func NewQuantity(amount string, unit ItemID) (Value, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(amount))
	if !ok {
		return Value{}, fmt.Errorf("invalid quantity amount %q", amount)
	}
	return Value{Kind: KindQuantity, Amount: formatRat(r), Unit: unit}, nil
}

// NewCount creates an integral quantity.
func NewCount(n int64, unit ItemID) Value {
	return Value{Kind: KindQuantity, Amount: formatRat(new(big.Rat).SetInt64(n)), Unit: unit}
}

// NewTime creates a time value, dropping fields finer than precision.
func NewTime(year, month, day int, precision Precision) Value {
	d := Date{Year: year, Month: month, Day: day, Precision: precision}.normalized()
	return Value{Kind: KindTime, Time: &d}
}

// NewText creates a monolingual text value with a canonicalized language tag.
func NewText(text, lang string) Value {
	return Value{Kind: KindText, Text: text, Language: CanonicalLanguage(lang)}
}

// CanonicalLanguage canonicalizes a BCP 47 tag. Tags that fail to parse are
// only lowercased so that private codes still compare stably.
func CanonicalLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	return t.String()
}

// Item returns the item id of an item value.
func (v Value) Item() ItemID {
	if v.Kind != KindItem {
		return ""
	}
	return ItemID(v.String)
}

// Key returns the canonical identity of the value. Two values are equal
// exactly when their keys are equal.
func (v Value) Key() string {
	switch v.Kind {
	case KindString:
		return "string:" + v.String
	case KindItem:
		return "item:" + v.String
	case KindQuantity:
		amount := v.Amount
		if r, ok := new(big.Rat).SetString(amount); ok {
			amount = formatRat(r)
		}
		return "quantity:" + amount + "|" + string(v.Unit)
	case KindTime:
		if v.Time == nil {
			return "time:"
		}
		d := v.Time.normalized()
		return fmt.Sprintf("time:%s/%d", d.String(), int(d.Precision))
	case KindText:
		return "text:" + CanonicalLanguage(v.Language) + ":" + v.Text
	default:
		return string(v.Kind) + ":?"
	}
}

// Equal reports whether two values are the same under kind-specific rules.
func (v Value) Equal(other Value) bool {
	return v.Kind == other.Kind && v.Key() == other.Key()
}

// SameLanguageAs reports whether both values are monolingual text in the
// same language.
func (v Value) SameLanguageAs(other Value) bool {
	if v.Kind != KindText || other.Kind != KindText {
		return false
	}
	return CanonicalLanguage(v.Language) == CanonicalLanguage(other.Language)
}

// IsZero reports whether the value is unset.
func (v Value) IsZero() bool {
	return v.Kind == ""
}

// Display returns a human readable rendering for logs and reports.
func (v Value) Display() string {
	switch v.Kind {
	case KindString, KindItem:
		return v.String
	case KindQuantity:
		if v.Unit != "" {
			return v.Amount + " " + string(v.Unit)
		}
		return v.Amount
	case KindTime:
		if v.Time == nil {
			return ""
		}
		return v.Time.String()
	case KindText:
		return fmt.Sprintf("%q@%s", v.Text, v.Language)
	default:
		return ""
	}
}

func formatRat(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	// Exact decimal for terminating fractions, otherwise a bounded expansion.
	s := r.FloatString(20)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ContainsValue reports whether values holds a value equal to v.
func ContainsValue(values []Value, v Value) bool {
	for _, existing := range values {
		if existing.Equal(v) {
			return true
		}
	}
	return false
}

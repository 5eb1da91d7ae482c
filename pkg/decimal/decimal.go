// Package decimal wraps cockroachdb/apd behind a small value type so metric
// arithmetic never round-trips through a binary float. Query fees and
// latencies arrive as decimal text and must fold into rollups exactly.
package decimal

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// apdCtx is the arithmetic context shared by all operations.
var apdCtx = apd.BaseContext.WithPrecision(34)

// Decimal is an immutable arbitrary-precision decimal. The zero value is 0.
type Decimal struct {
	value apd.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{}

// New parses s as a decimal.
func New(s string) (Decimal, error) {
	var d apd.Decimal
	_, _, err := d.SetString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return Decimal{value: d}, nil
}

// FromInt64 returns i as a Decimal.
func FromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

func (d Decimal) String() string {
	return d.value.Text('f')
}

func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	_, _ = apdCtx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns d * other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	_, _ = apdCtx.Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Div returns d / other. The caller must not pass a zero divisor; the
// aggregation engine branches on the total weight before dividing.
func (d Decimal) Div(other Decimal) Decimal {
	var result apd.Decimal
	_, _ = apdCtx.Quo(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// MarshalJSON encodes the decimal as a JSON string to keep full precision
// on the wire.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number token.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := New(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Max returns the larger of a and b.
func Max(a, b Decimal) Decimal {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

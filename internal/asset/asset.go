package asset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxPrecision bounds the number of fraction digits a symbol may carry.
const MaxPrecision = 18

// Symbol identifies a value unit and the number of fraction digits its
// amounts carry.
type Symbol struct {
	Code      string
	Precision uint8
}

// ParseSymbol parses the "<precision>,<CODE>" form, e.g. "0,CRON" or "4,EOS".
func ParseSymbol(s string) (Symbol, error) {
	prec, code, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Symbol{}, fmt.Errorf("symbol %q: want <precision>,<code>", s)
	}
	p, err := strconv.ParseUint(strings.TrimSpace(prec), 10, 8)
	if err != nil || p > MaxPrecision {
		return Symbol{}, fmt.Errorf("symbol %q: bad precision", s)
	}
	sym := Symbol{Code: strings.ToUpper(strings.TrimSpace(code)), Precision: uint8(p)}
	if err := validCode(sym.Code); err != nil {
		return Symbol{}, err
	}
	return sym, nil
}

func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

func validCode(code string) error {
	if len(code) == 0 || len(code) > 7 {
		return fmt.Errorf("symbol code %q must be 1-7 letters", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("symbol code %q must be upper case letters", code)
		}
	}
	return nil
}

// Asset is a fixed-point quantity: Amount is expressed in units of
// 10^-Precision of the symbol.
type Asset struct {
	Amount int64
	Symbol Symbol
}

// New builds an asset from a raw amount in smallest units.
func New(amount int64, sym Symbol) Asset {
	return Asset{Amount: amount, Symbol: sym}
}

// Parse reads the textual form "<decimal> <CODE>". The code is upper-cased
// and the precision is taken from the number of fraction digits written.
func Parse(s string) (Asset, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Asset{}, fmt.Errorf("asset %q: want <amount> <symbol>", s)
	}
	code := strings.ToUpper(fields[1])
	if err := validCode(code); err != nil {
		return Asset{}, err
	}
	d, err := decimal.NewFromString(fields[0])
	if err != nil {
		return Asset{}, fmt.Errorf("asset %q: %w", s, err)
	}
	prec := int32(0)
	if exp := d.Exponent(); exp < 0 {
		prec = -exp
	}
	if prec > MaxPrecision {
		return Asset{}, fmt.Errorf("asset %q: precision exceeds %d", s, MaxPrecision)
	}
	amount, err := toUnits(d, prec)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %q: %w", s, err)
	}
	return Asset{Amount: amount, Symbol: Symbol{Code: code, Precision: uint8(prec)}}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Asset {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Rescale converts the asset to the given precision. It fails when the
// conversion would drop non-zero fraction digits or overflow.
func (a Asset) Rescale(precision uint8) (Asset, error) {
	if precision > MaxPrecision {
		return Asset{}, fmt.Errorf("precision exceeds %d", MaxPrecision)
	}
	d := decimal.New(a.Amount, -int32(a.Symbol.Precision))
	amount, err := toUnits(d, int32(precision))
	if err != nil {
		return Asset{}, err
	}
	return Asset{Amount: amount, Symbol: Symbol{Code: a.Symbol.Code, Precision: precision}}, nil
}

// Decimal returns the quantity as a decimal number of whole units.
func (a Asset) Decimal() decimal.Decimal {
	return decimal.New(a.Amount, -int32(a.Symbol.Precision))
}

func (a Asset) String() string {
	return a.Decimal().StringFixed(int32(a.Symbol.Precision)) + " " + a.Symbol.Code
}

// MarshalJSON encodes the asset in its textual form.
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the textual form.
func (a *Asset) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func toUnits(d decimal.Decimal, precision int32) (int64, error) {
	shifted := d.Shift(precision)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d fraction digits", d, precision)
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || shifted.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("amount %s out of range", d)
	}
	return shifted.IntPart(), nil
}

package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// BigInt uint256 token amount. Stored as numeric(78,0) in postgres, text elsewhere,
// rendered as a decimal string in JSON.
type BigInt struct {
	*big.Int
}

// NewBigInt wraps v; nil becomes zero
func NewBigInt(v *big.Int) BigInt {
	if v == nil {
		return BigInt{Int: new(big.Int)}
	}
	return BigInt{Int: new(big.Int).Set(v)}
}

// BigIntFromInt64 convenience constructor for tests and defaults
func BigIntFromInt64(v int64) BigInt {
	return BigInt{Int: big.NewInt(v)}
}

// Big returns a copy, zero when unset
func (b BigInt) Big() *big.Int {
	if b.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.Int)
}

func (b BigInt) String() string {
	if b.Int == nil {
		return "0"
	}
	return b.Int.String()
}

// Value implements driver.Valuer
func (b BigInt) Value() (driver.Value, error) {
	return b.String(), nil
}

// Scan implements sql.Scanner
func (b *BigInt) Scan(src interface{}) error {
	v := new(big.Int)
	switch s := src.(type) {
	case nil:
	case int64:
		v.SetInt64(s)
	case float64:
		v.SetInt64(int64(s))
	case []byte:
		if _, ok := v.SetString(strings.TrimSpace(string(s)), 10); !ok {
			return fmt.Errorf("scan BigInt: invalid value %q", s)
		}
	case string:
		if _, ok := v.SetString(strings.TrimSpace(s), 10); !ok {
			return fmt.Errorf("scan BigInt: invalid value %q", s)
		}
	default:
		return fmt.Errorf("scan BigInt: unsupported type %T", src)
	}
	b.Int = v
	return nil
}

// GormDBDataType numeric on postgres; text on sqlite so large values keep precision
func (BigInt) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "numeric(78,0)"
	}
	return "text"
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return err
		}
		s = n.String()
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid BigInt %q", s)
	}
	b.Int = v
	return nil
}

// SubClamped a-b, never below zero
func SubClamped(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

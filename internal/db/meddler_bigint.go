package db

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/russross/meddler"
)

func init() {
	// Register custom meddler converter for *big.Int
	meddler.Register("bigint", BigIntMeddler{})
}

// BigIntMeddler stores *big.Int values as base-10 text so amounts wider than
// 64 bits survive both sqlite and postgres unchanged.
type BigIntMeddler struct{}

func (b BigIntMeddler) PreRead(fieldAddr any) (scanTarget any, err error) {
	return new(sql.NullString), nil
}

func (b BigIntMeddler) PostRead(fieldAddr, scanTarget any) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(**big.Int)
	if !ok {
		return fmt.Errorf("expected **big.Int, got %T", fieldAddr)
	}

	if !ns.Valid {
		*ptr = nil
		return nil
	}

	v, ok := new(big.Int).SetString(ns.String, 10) //nolint:mnd
	if !ok {
		return fmt.Errorf("invalid decimal integer %q", ns.String)
	}
	*ptr = v
	return nil
}

func (b BigIntMeddler) PreWrite(field any) (saveValue any, err error) {
	v, ok := field.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", field)
	}
	if v == nil {
		return nil, nil
	}
	return v.String(), nil
}

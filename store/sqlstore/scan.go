package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/recurring-engine/recurring"
)

// Drivers disagree on how DATE and timestamp columns come back: SQLite
// yields TEXT, lib/pq yields time.Time. These scanners accept both.
//
// A value that does not parse is kept in Err instead of failing rows.Scan,
// so one bad row does not abort the whole result set.

type dateValue struct {
	Date recurring.Date
	Err  error
}

func (v *dateValue) Scan(src any) error {
	switch x := src.(type) {
	case time.Time:
		v.Date = recurring.DateOf(x)
	case string:
		v.Date, v.Err = recurring.ParseDate(x)
	case []byte:
		v.Date, v.Err = recurring.ParseDate(string(x))
	default:
		v.Err = fmt.Errorf("cannot scan %T into date", src)
	}
	return nil
}

type nullDateValue struct {
	dateValue
	Valid bool
}

func (v *nullDateValue) Scan(src any) error {
	v.Valid = src != nil
	if !v.Valid {
		return nil
	}
	return v.dateValue.Scan(src)
}

type decimalValue struct {
	Decimal decimal.Decimal
	Err     error
}

func (v *decimalValue) Scan(src any) error {
	if err := v.Decimal.Scan(src); err != nil {
		v.Err = fmt.Errorf("invalid amount %v: %w", src, err)
	}
	return nil
}

type timeValue struct {
	Time time.Time
	Err  error
}

func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case time.Time:
		v.Time = x.UTC()
	case string:
		v.parse(x)
	case []byte:
		v.parse(string(x))
	default:
		v.Err = fmt.Errorf("cannot scan %T into time", src)
	}
	return nil
}

func (v *timeValue) parse(s string) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		v.Err = fmt.Errorf("invalid timestamp %q: %w", s, err)
		return
	}
	v.Time = t.UTC()
}

type nullTimeValue struct {
	timeValue
	Valid bool
}

func (v *nullTimeValue) Scan(src any) error {
	v.Valid = src != nil
	if !v.Valid {
		return nil
	}
	return v.timeValue.Scan(src)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

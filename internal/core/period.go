package core

import (
	"fmt"
	"time"
)

// Period is a calendar month.
type Period struct {
	Year  int
	Month int // 1-12
}

// NewPeriod builds a validated period.
func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// CurrentPeriod returns the period containing t.
func CurrentPeriod(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, p.Month)
	}
	if p.Year < 1900 || p.Year > 9999 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	return nil
}

// Index is a monotonically increasing month counter (year*12 + month).
func (p Period) Index() int {
	return p.Year*12 + p.Month
}

// PeriodFromIndex is the inverse of Index.
func PeriodFromIndex(idx int) Period {
	m := idx % 12
	if m == 0 {
		return Period{Year: idx/12 - 1, Month: 12}
	}
	return Period{Year: idx / 12, Month: m}
}

// AddMonths shifts the period by n months, n may be negative.
func (p Period) AddMonths(n int) Period {
	return PeriodFromIndex(p.Index() + n)
}

func (p Period) Prev() Period { return p.AddMonths(-1) }

func (p Period) Before(o Period) bool { return p.Index() < o.Index() }

// Start is the first day of the period.
func (p Period) Start() Date {
	return NewDate(p.Year, p.Month, 1)
}

// End is the last day of the period.
func (p Period) End() Date {
	return Date{Time: p.Start().AddDate(0, 1, -1)}
}

// Contains reports whether d falls within the period.
func (p Period) Contains(d Date) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is a payment month.
type Period struct {
	Month time.Month `json:"month"`
	Year  int        `json:"year"`
}

func NewPeriod(month, year int) (Period, error) {
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Month: time.Month(month), Year: year}, nil
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: t.Month(), Year: t.Year()}
}

// ParsePeriod accepts "YYYY-MM".
func ParsePeriod(raw string) (Period, error) {
	year, month, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return Period{}, ErrInvalidPeriod
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, ErrInvalidPeriod
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return Period{}, ErrInvalidPeriod
	}
	return NewPeriod(m, y)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) IsZero() bool {
	return p.Month == 0 && p.Year == 0
}

// ResolvePaymentPeriod picks the month an activity pays its workers in: the explicit
// payment month, else the data-collection start month, else the earliest phase start.
func ResolvePaymentPeriod(a Activity) (Period, error) {
	if a.PaymentPeriod != nil && !a.PaymentPeriod.IsZero() {
		return *a.PaymentPeriod, nil
	}
	if start := a.Schedule.DataCollection.Start; start != nil {
		return PeriodOf(*start), nil
	}
	if start := a.Schedule.EarliestStart(); start != nil {
		return PeriodOf(*start), nil
	}
	return Period{}, ErrInsufficientScheduleInfo
}

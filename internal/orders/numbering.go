package orders

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	orderNumberDayLayout = "20060102"
	maxDailySequence     = 9999
)

var orderNumberRE = regexp.MustCompile(`^ORD-(\d{8})-(\d{4})$`)

// OrderDay truncates t to its UTC calendar day, the scope of the sequence.
func OrderDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatOrderNumber renders ORD-YYYYMMDD-NNNN for the n-th order of day.
func FormatOrderNumber(day time.Time, seq int) (string, error) {
	if seq < 1 {
		return "", fmt.Errorf("order sequence must start at 1, got %d", seq)
	}
	if seq > maxDailySequence {
		return "", ErrSequenceExhausted
	}
	return fmt.Sprintf("ORD-%s-%04d", day.UTC().Format(orderNumberDayLayout), seq), nil
}

// ParseOrderNumber returns the UTC day and sequence encoded in an order number.
func ParseOrderNumber(s string) (time.Time, int, error) {
	m := orderNumberRE.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, 0, fmt.Errorf("malformed order number %q", s)
	}
	day, err := time.ParseInLocation(orderNumberDayLayout, m[1], time.UTC)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("malformed order number %q: %w", s, err)
	}
	seq, _ := strconv.Atoi(m[2])
	if seq == 0 {
		return time.Time{}, 0, fmt.Errorf("malformed order number %q: zero sequence", s)
	}
	return day, seq, nil
}

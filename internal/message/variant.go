package message

import (
	"fmt"
	"time"
)

// Variant is the temporal framing of a message relative to today.
type Variant string

const (
	VariantPast    Variant = "past"
	VariantPresent Variant = "present"
	VariantFuture  Variant = "future"
)

// Variants lists every valid variant.
var Variants = []Variant{VariantPast, VariantPresent, VariantFuture}

// ParseVariant validates s.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want past, present or future)", ErrInvalidVariant, s)
}

// VariantFor compares the calendar days of date and today in loc.
func VariantFor(date, today time.Time, loc *time.Location) Variant {
	d := dayOf(date, loc)
	t := dayOf(today, loc)
	switch {
	case d.Before(t):
		return VariantPast
	case d.After(t):
		return VariantFuture
	default:
		return VariantPresent
	}
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

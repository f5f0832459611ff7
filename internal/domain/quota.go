// Package domain contains core business types and interfaces.
//
// This file holds the quota policy: day rollover, remaining allowance and the
// per-tier country lock. Everything here is pure; callers pass the clock in.
package domain

import (
	"fmt"
	"time"
)

// SameDay reports whether a and b fall on the same calendar date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// SameMonth reports whether a and b fall in the same calendar month in loc.
func SameMonth(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// IsStale reports whether the daily counters belong to an earlier day.
func IsStale(lastActivity *time.Time, now time.Time, loc *time.Location) bool {
	return lastActivity == nil || !SameDay(*lastActivity, now, loc)
}

// ApplyRollover resets the daily counters when they are stale. Repeated calls
// leave the account unchanged. LastActivityDate is left alone; the next committed
// interaction refreshes it.
func ApplyRollover(a *Account, now time.Time, loc *time.Location) {
	if !IsStale(a.LastActivityDate, now, loc) {
		return
	}
	a.DailyNumbersShown = 0
	a.ShownNumbers = []string{}
}

// Remaining returns how many allocations the account has left today.
// Call ApplyRollover first.
func Remaining(a *Account) int {
	return TierQuota(a.Tier) - a.DailyNumbersShown
}

// CheckQuota returns QuotaExceeded when the account has no allowance left.
func CheckQuota(op string, a *Account) error {
	if Remaining(a) <= 0 {
		return QuotaExceeded(op, TierQuota(a.Tier))
	}
	return nil
}

// FirstOfNextMonth returns midnight on the first day of the month after t, in loc.
func FirstOfNextMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
}

// CountryLockExpired reports whether a tier1/tier2 selection may be released.
// Selections without a lock date are treated as expired.
func CountryLockExpired(a *Account, now time.Time, loc *time.Location) bool {
	if a.SelectedCountry == "" {
		return false
	}
	return a.CountryLockDate == nil || !SameMonth(*a.CountryLockDate, now, loc)
}

// CheckCountryChange enforces the country lock for a request to select country.
// The account must already have had ApplyRollover applied.
//
// tier1 and tier2 stay on their country for the calendar month of the lock date.
// tier3 may only switch once the day's quota is used up.
func CheckCountryChange(op string, a *Account, country string, now time.Time, loc *time.Location) error {
	if a.SelectedCountry == "" || a.SelectedCountry == country {
		return nil
	}

	switch a.Tier {
	case Tier3:
		if a.DailyNumbersShown < TierQuota(Tier3) {
			return Forbidden(op, fmt.Sprintf("You must use all %d daily numbers before changing country.", TierQuota(Tier3)))
		}
		return nil
	default:
		if CountryLockExpired(a, now, loc) {
			return nil
		}
		until := FirstOfNextMonth(*a.CountryLockDate, loc)
		return Forbidden(op, fmt.Sprintf("Your country is locked to %s until %s.", a.SelectedCountry, until.Format("January 2, 2006")))
	}
}

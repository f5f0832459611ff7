package domain

import (
	"slices"
	"time"
)

// Account is the per-user record consumed and mutated by the allocation engine.
//
// Quota fields (DailyNumbersShown, ShownNumbers, LastActivityDate) are written only by
// the engine and by tier changes. SavedNumbers only ever grows.
type Account struct {
	UserID            string
	Email             string
	Tier              Tier
	Role              Role
	SelectedCountry   string
	CountryLockDate   *time.Time
	DailyNumbersShown int
	ShownNumbers      []string
	SavedNumbers      []string
	LastActivityDate  *time.Time
	HasSeenGuide      bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewAccount returns the default record materialized for a user seen for the first time.
// LastActivityDate is set to now so a brand-new account is not stale.
func NewAccount(userID string, now time.Time) *Account {
	return &Account{
		UserID:           userID,
		Tier:             DefaultTier,
		ShownNumbers:     []string{},
		SavedNumbers:     []string{},
		LastActivityDate: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.ShownNumbers = slices.Clone(a.ShownNumbers)
	c.SavedNumbers = slices.Clone(a.SavedNumbers)
	if a.CountryLockDate != nil {
		t := *a.CountryLockDate
		c.CountryLockDate = &t
	}
	if a.LastActivityDate != nil {
		t := *a.LastActivityDate
		c.LastActivityDate = &t
	}
	return &c
}

// HasSeen reports whether number was shown today or saved at any time.
func (a *Account) HasSeen(number string) bool {
	return slices.Contains(a.ShownNumbers, number) || slices.Contains(a.SavedNumbers, number)
}

// HasSaved reports whether number is in the saved list.
func (a *Account) HasSaved(number string) bool {
	return slices.Contains(a.SavedNumbers, number)
}

// RecordShown credits one allocation to the account.
func (a *Account) RecordShown(number string, now time.Time) {
	a.DailyNumbersShown++
	a.ShownNumbers = append(a.ShownNumbers, number)
	a.LastActivityDate = &now
	a.UpdatedAt = now
}

// ResetForTier switches tiers and clears everything a rollover clears plus the country lock.
func (a *Account) ResetForTier(tier Tier, now time.Time) {
	a.Tier = tier
	a.DailyNumbersShown = 0
	a.ShownNumbers = []string{}
	a.SelectedCountry = ""
	a.CountryLockDate = nil
	a.LastActivityDate = &now
	a.UpdatedAt = now
}

// AccountSummary is the self-service view of an account.
type AccountSummary struct {
	UserID            string     `json:"userId"`
	Email             string     `json:"email,omitempty"`
	Tier              Tier       `json:"tier"`
	SelectedCountry   string     `json:"selected_country"`
	DailyNumbersShown int        `json:"daily_numbers_shown"`
	DailyLimit        int        `json:"daily_limit"`
	Remaining         int        `json:"remaining"`
	TotalSavedNumbers int        `json:"total_saved_numbers"`
	HasSeenGuide      bool       `json:"hasSeenGuide"`
	LastActivityDate  *time.Time `json:"last_activity_date"`
	CountryLockDate   *time.Time `json:"country_lock_date"`
}

// Summary builds the self-service view. Apply rollover first so the counters are current.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		UserID:            a.UserID,
		Email:             a.Email,
		Tier:              a.Tier,
		SelectedCountry:   a.SelectedCountry,
		DailyNumbersShown: a.DailyNumbersShown,
		DailyLimit:        TierQuota(a.Tier),
		Remaining:         max(Remaining(a), 0),
		TotalSavedNumbers: len(a.SavedNumbers),
		HasSeenGuide:      a.HasSeenGuide,
		LastActivityDate:  a.LastActivityDate,
		CountryLockDate:   a.CountryLockDate,
	}
}

// NumberListKind selects which list ListNumbers pages through.
type NumberListKind string

const (
	NumberListShown NumberListKind = "shown"
	NumberListSaved NumberListKind = "saved"
)

// NumberPage is one page of an account's shown or saved numbers.
type NumberPage struct {
	Numbers    []string `json:"numbers"`
	Total      int      `json:"total"`
	HasMore    bool     `json:"hasMore"`
	StartAfter string   `json:"startAfter,omitempty"`
}

// PageNumbers slices list after the last occurrence of startAfter.
func PageNumbers(list []string, startAfter string, limit int) NumberPage {
	start := 0
	if startAfter != "" {
		if idx := lastIndex(list, startAfter); idx >= 0 {
			start = idx + 1
		}
	}
	end := min(start+limit, len(list))
	page := NumberPage{
		Numbers: slices.Clone(list[start:end]),
		Total:   len(list),
		HasMore: end < len(list),
	}
	if page.Numbers == nil {
		page.Numbers = []string{}
	}
	if page.HasMore && len(page.Numbers) > 0 {
		page.StartAfter = page.Numbers[len(page.Numbers)-1]
	}
	return page
}

func lastIndex(list []string, v string) int {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i] == v {
			return i
		}
	}
	return -1
}

// AccountUpdate holds the administrative changes applied by ManageUser.
// Nil fields are left untouched. A non-nil Role pointing at RoleNone clears the role.
type AccountUpdate struct {
	Tier  *Tier
	Role  *Role
	Email *string
}

// AccountPage is one page of the administrative user listing.
type AccountPage struct {
	Accounts []Account
	LastUser string
	HasMore  bool
}

package models

import (
	"reflect"
	"time"
)

var AccountType = reflect.TypeOf(Account{})

type CredibilityLevel string

const (
	LevelNewcomer    CredibilityLevel = "Newcomer"
	LevelContributor CredibilityLevel = "Contributor"
	LevelEstablished CredibilityLevel = "Established"
	LevelTrusted     CredibilityLevel = "Trusted"
)

var CredibilityLevels = []CredibilityLevel{LevelNewcomer, LevelContributor, LevelEstablished, LevelTrusted}

func ParseCredibilityLevel(s string) (CredibilityLevel, bool) {
	for _, l := range CredibilityLevels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

type LevelSource string

const (
	LevelSourceDerived LevelSource = "derived"
	LevelSourceManual  LevelSource = "manual"
)

type Account struct {
	ID    int    `db:"id"`
	Email string `db:"email"`
	Name  string `db:"name"`

	IsAdmin bool `db:"is_admin"`

	Score        int `db:"score"`
	InitialScore int `db:"initial_score"` // Baseline for ledger replay

	IsSuspended  bool `db:"is_suspended"`
	IsSoftBanned bool `db:"is_soft_banned"`

	Level                CredibilityLevel `db:"credibility_level"`
	LevelSource          LevelSource      `db:"credibility_level_source"`
	CredibilityUpdatedBy *string          `db:"credibility_updated_by"`
	CredibilityUpdatedAt *time.Time       `db:"credibility_updated_at"`

	CreatedAt time.Time `db:"created_at"`
}

// Credibility is either DerivedCredibility, which background re-derivation may
// overwrite, or ManualCredibility, which it must leave alone.
type Credibility interface {
	CurrentLevel() CredibilityLevel
	isCredibility()
}

type DerivedCredibility struct {
	Level CredibilityLevel
}

type ManualCredibility struct {
	Level CredibilityLevel
	By    string
	At    time.Time
}

func (c DerivedCredibility) CurrentLevel() CredibilityLevel { return c.Level }
func (c ManualCredibility) CurrentLevel() CredibilityLevel  { return c.Level }

func (DerivedCredibility) isCredibility() {}
func (ManualCredibility) isCredibility()  {}

func (a *Account) Credibility() Credibility {
	if a.LevelSource == LevelSourceManual && a.CredibilityUpdatedBy != nil {
		c := ManualCredibility{Level: a.Level, By: *a.CredibilityUpdatedBy}
		if a.CredibilityUpdatedAt != nil {
			c.At = *a.CredibilityUpdatedAt
		}
		return c
	}
	return DerivedCredibility{Level: a.Level}
}

// SetCredibility stores c into the flattened columns.
func (a *Account) SetCredibility(c Credibility) {
	switch c := c.(type) {
	case DerivedCredibility:
		a.Level = c.Level
		a.LevelSource = LevelSourceDerived
		a.CredibilityUpdatedBy = nil
		a.CredibilityUpdatedAt = nil
	case ManualCredibility:
		by, at := c.By, c.At
		a.Level = c.Level
		a.LevelSource = LevelSourceManual
		a.CredibilityUpdatedBy = &by
		a.CredibilityUpdatedAt = &at
	}
}

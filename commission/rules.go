/*
rules.go - Versioned commission rule table

PURPOSE:
  The rule table is the static-ish configuration everything else reads:
  percent per (structure, level), unlock thresholds, hold period, currency
  rate. It is an explicit value passed into every resolver/distributor
  call, never ambient global state, so historical recomputation can pin
  the table that was active at a past instant.

VERSIONING:
  A RuleSet is an ordered list of RuleTables with ValidFrom timestamps.
  RulesAt(asOf) returns the table in force at that instant. Rule changes
  are appended as new tables, never edited in place.

CONFIGURATION ERRORS ARE FATAL:
  A missing or invalid rule for a (structure, level) pair halts
  distribution for that structure with a RuleConfigError. The engine never
  silently skips a level because of configuration.
*/
package commission

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMISSION RULE - One (structure, level) cell of the table
// =============================================================================

type CommissionRule struct {
	Structure Structure
	Level     int

	// Percent of the payment's normalized amount, e.g. 0.10.
	Percent decimal.Decimal

	// Minimum direct-referral count the beneficiary must have, measured at
	// the relevant instant, to earn at this level. Zero means no gate.
	// Structure B applies no referral gate at any level.
	MinDirectReferrals int
}

// =============================================================================
// RULE TABLE - Full configuration in force at a point in time
// =============================================================================

type RuleTable struct {
	Version   int
	ValidFrom time.Time

	// HoldPeriod is how long a commission stays frozen before release.
	HoldPeriod time.Duration

	// BaseCurrency and CurrencyRate define the single fixed conversion:
	// payments in BaseCurrency are already normalized; anything else is
	// divided by CurrencyRate.
	BaseCurrency string
	CurrencyRate decimal.Decimal

	rules map[Structure][]CommissionRule
}

// NewRuleTable builds a table from a flat rule list. Levels must be
// contiguous from 1 per structure.
func NewRuleTable(version int, validFrom time.Time, holdPeriod time.Duration, baseCurrency string, currencyRate decimal.Decimal, rules []CommissionRule) (*RuleTable, error) {
	t := &RuleTable{
		Version:      version,
		ValidFrom:    validFrom,
		HoldPeriod:   holdPeriod,
		BaseCurrency: baseCurrency,
		CurrencyRate: currencyRate,
		rules:        make(map[Structure][]CommissionRule),
	}
	for _, r := range rules {
		t.rules[r.Structure] = append(t.rules[r.Structure], r)
	}
	for s := range t.rules {
		sort.Slice(t.rules[s], func(i, j int) bool { return t.rules[s][i].Level < t.rules[s][j].Level })
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *RuleTable) validate() error {
	one := decimal.NewFromInt(1)
	for s, rules := range t.rules {
		for i, r := range rules {
			if r.Level != i+1 {
				return &RuleConfigError{Structure: s, Level: i + 1, Detail: "levels must be contiguous from 1"}
			}
			if !r.Percent.IsPositive() || r.Percent.GreaterThan(one) {
				return &RuleConfigError{Structure: s, Level: r.Level, Detail: "percent must be in (0, 1]"}
			}
			if r.MinDirectReferrals < 0 {
				return &RuleConfigError{Structure: s, Level: r.Level, Detail: "negative referral threshold"}
			}
		}
	}
	if !t.CurrencyRate.IsPositive() {
		return &RuleConfigError{Structure: "", Level: 0, Detail: "currency rate must be positive"}
	}
	return nil
}

// Rule returns the rule for (structure, level). A request past MaxDepth is
// not a configuration error; it is the resolver's too_deep outcome. A
// request inside the depth with no rule is fatal misconfiguration.
func (t *RuleTable) Rule(s Structure, level int) (CommissionRule, error) {
	rules, ok := t.rules[s]
	if !ok || len(rules) == 0 {
		return CommissionRule{}, &RuleConfigError{Structure: s, Level: level, Detail: "no rules configured for structure"}
	}
	if level < 1 || level > len(rules) {
		return CommissionRule{}, &RuleConfigError{Structure: s, Level: level, Detail: "level outside configured depth"}
	}
	return rules[level-1], nil
}

// MaxDepth returns the configured depth for a structure (5 for A, 10 for B
// under the default table).
func (t *RuleTable) MaxDepth(s Structure) int { return len(t.rules[s]) }

// Normalize converts a payment amount in currency to the base currency.
func (t *RuleTable) Normalize(amount decimal.Decimal, currency string) decimal.Decimal {
	if currency == t.BaseCurrency {
		return amount
	}
	return amount.Div(t.CurrencyRate).Round(2)
}

// =============================================================================
// RULE SET - Versioned history of tables
// =============================================================================

type RuleSet struct {
	tables []*RuleTable // sorted by ValidFrom ascending
}

func NewRuleSet(tables ...*RuleTable) *RuleSet {
	s := &RuleSet{tables: append([]*RuleTable(nil), tables...)}
	sort.Slice(s.tables, func(i, j int) bool { return s.tables[i].ValidFrom.Before(s.tables[j].ValidFrom) })
	return s
}

// RulesAt returns the table in force at asOf. If asOf predates every table,
// the oldest table applies (there was never a time without rules).
func (s *RuleSet) RulesAt(asOf time.Time) *RuleTable {
	current := s.tables[0]
	for _, t := range s.tables {
		if t.ValidFrom.After(asOf) {
			break
		}
		current = t
	}
	return current
}

// Current returns the table in force now.
func (s *RuleSet) Current() *RuleTable { return s.RulesAt(time.Now().UTC()) }

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultRuleTable mirrors the production plan: Structure A pays 10% flat
// over 5 levels with unlock thresholds 3/5/8/10 from level 2; Structure B
// pays a tiered rate over 10 levels with no referral gate.
func DefaultRuleTable() *RuleTable {
	pct := func(s string) decimal.Decimal { d, _ := decimal.NewFromString(s); return d }
	return DefaultRuleTableWith(7*24*time.Hour, "USD", pct("89500"))
}

// DefaultRuleTableWith is DefaultRuleTable with the operational knobs
// (hold period, base currency, conversion rate) taken from configuration.
// The percentage grid itself is not configurable.
func DefaultRuleTableWith(holdPeriod time.Duration, baseCurrency string, currencyRate decimal.Decimal) *RuleTable {
	pct := func(s string) decimal.Decimal { d, _ := decimal.NewFromString(s); return d }

	rules := []CommissionRule{
		{Structure: StructureA, Level: 1, Percent: pct("0.10")},
		{Structure: StructureA, Level: 2, Percent: pct("0.10"), MinDirectReferrals: 3},
		{Structure: StructureA, Level: 3, Percent: pct("0.10"), MinDirectReferrals: 5},
		{Structure: StructureA, Level: 4, Percent: pct("0.10"), MinDirectReferrals: 8},
		{Structure: StructureA, Level: 5, Percent: pct("0.10"), MinDirectReferrals: 10},
	}
	bPercents := []string{"0.10", "0.05", "0.03", "0.02", "0.01", "0.01", "0.01", "0.01", "0.01", "0.01"}
	for i, p := range bPercents {
		rules = append(rules, CommissionRule{Structure: StructureB, Level: i + 1, Percent: pct(p)})
	}

	t, err := NewRuleTable(1, time.Time{}, holdPeriod, baseCurrency, currencyRate, rules)
	if err != nil {
		panic(err) // defaults are static and validated by tests
	}
	return t
}

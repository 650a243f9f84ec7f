package signal

import (
	"strings"

	"github.com/fyrsmithlabs/signald/internal/event"
)

// Category is the detected event type driving planner rules and the
// preliminary signal.
type Category string

const (
	CategoryListing     Category = "listing"
	CategoryDelisting   Category = "delisting"
	CategoryHack        Category = "hack"
	CategoryRegulation  Category = "regulation"
	CategoryPartnership Category = "partnership"
	CategoryMacro       Category = "macro"
	CategoryAirdrop     Category = "airdrop"
	CategoryRumor       Category = "rumor"
	CategoryOther       Category = "other"
)

// categoryTerms maps categories to their trigger terms, checked in
// order of severity so "delist" wins over "list".
var categoryTerms = []struct {
	category Category
	terms    []string
}{
	{CategoryHack, []string{"hack", "hacked", "exploit", "exploited", "stolen", "drained", "breach", "rug pull", "rugged"}},
	{CategoryDelisting, []string{"delist", "delisting", "delisted", "removes trading", "suspend trading", "suspends trading"}},
	{CategoryListing, []string{"listing", "lists", "listed", "will list", "trading opens", "trading pair", "launchpool"}},
	{CategoryRegulation, []string{"sec ", "regulator", "regulation", "lawsuit", "subpoena", "settlement", "banned", "sanction", "etf approval", "etf approved"}},
	{CategoryPartnership, []string{"partnership", "partners with", "integration", "integrates", "collaboration", "acquires", "acquisition"}},
	{CategoryMacro, []string{"fed ", "fomc", "rate hike", "rate cut", "inflation", "cpi ", "treasury", "interest rate"}},
	{CategoryAirdrop, []string{"airdrop", "token distribution", "snapshot for"}},
	{CategoryRumor, []string{"rumor", "rumour", "unconfirmed", "allegedly", "sources say", "reportedly"}},
}

// Classify detects the event category from its canonical text. Informal
// uncorroborated chatter degrades to rumor rather than a hard category.
func Classify(ev *event.Event) Category {
	text := " " + strings.ToLower(ev.CanonicalText) + " "
	if text == "  " {
		text = " " + strings.ToLower(ev.RawText) + " "
	}

	category := CategoryOther
	for _, entry := range categoryTerms {
		for _, term := range entry.terms {
			if strings.Contains(text, term) {
				category = entry.category
				break
			}
		}
		if category != CategoryOther {
			break
		}
	}

	if category == CategoryOther {
		return category
	}
	if !ev.Formal && category != CategoryRumor && category != CategoryMacro {
		// High-impact claims from informal sources start life as rumors
		// until evidence confirms them, except hacks where speed
		// matters more than certainty.
		if category != CategoryHack {
			return CategoryRumor
		}
	}
	return category
}

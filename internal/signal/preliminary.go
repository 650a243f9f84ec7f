package signal

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/signald/internal/event"
)

// categoryPriors hold the pre-evidence stance per category. Values are
// deliberately modest; evidence fusion moves them.
var categoryPriors = map[Category]struct {
	action     Action
	direction  Direction
	confidence float64
}{
	CategoryListing:     {ActionBuy, DirectionBullish, 0.55},
	CategoryDelisting:   {ActionSell, DirectionBearish, 0.55},
	CategoryHack:        {ActionSell, DirectionBearish, 0.60},
	CategoryRegulation:  {ActionObserve, DirectionBearish, 0.45},
	CategoryPartnership: {ActionBuy, DirectionBullish, 0.45},
	CategoryMacro:       {ActionObserve, DirectionNeutral, 0.40},
	CategoryAirdrop:     {ActionBuy, DirectionBullish, 0.40},
	CategoryRumor:       {ActionObserve, DirectionNeutral, 0.30},
	CategoryOther:       {ActionObserve, DirectionNeutral, 0.30},
}

// Preliminary derives the pre-evidence signal for an event. It is the
// fallback output when reasoning aborts, so it must always be valid on
// its own.
func Preliminary(ev *event.Event) Signal {
	category := Classify(ev)
	prior := categoryPriors[category]

	var assets []string
	if ev.AssetHint != "" {
		assets = []string{ev.AssetHint}
	}

	s := Signal{
		EventID:    ev.ID,
		CreatedAt:  time.Now().UTC(),
		Summary:    summarize(ev),
		EventType:  string(category),
		Assets:     assets,
		Action:     prior.action,
		Direction:  prior.direction,
		Confidence: prior.confidence,
	}

	// Required entities missing: without a target asset there is
	// nothing to act on.
	if len(assets) == 0 && s.Action != ActionObserve {
		s.Action = ActionObserve
		s.Notes = append(s.Notes, "no target asset identified, holding to observe")
	}
	if !ev.Formal {
		s.AddFlag(FlagUnverified)
	}

	s.Strength = StrengthFor(s.Confidence)
	return s
}

// summarize produces the one-line signal summary from the raw text.
// Truncation counts runes so multi-byte text never splits mid-rune.
func summarize(ev *event.Event) string {
	text := strings.Join(strings.Fields(ev.RawText), " ")
	const maxLen = 140
	if runes := []rune(text); len(runes) > maxLen {
		text = string(runes[:maxLen-3]) + "..."
	}
	if ev.Source != "" {
		return fmt.Sprintf("[%s] %s", ev.Source, text)
	}
	return text
}

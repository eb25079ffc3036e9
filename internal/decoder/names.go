package decoder

// sorobanEventNames maps the symbols the Soroban contracts publish to normalized names.
var sorobanEventNames = map[string]string{
	"CallCreated":       EventCallCreated,
	"StakeAdded":        EventStakeAdded,
	"OutcomeSubmitted":  EventOutcomeSubmitted,
	"call_created":      EventCallCreated,
	"stake_added":       EventStakeAdded,
	"outcome_submitted": EventOutcomeSubmitted,
	"payout_withdrawn":  EventPayoutWithdrawn,
	"oracle_updated":    EventOracleUpdated,
}

// NormalizeEventName maps a raw event symbol to its normalized name.
// Unmapped names pass through unchanged.
func NormalizeEventName(raw string) string {
	if name, ok := sorobanEventNames[raw]; ok {
		return name
	}
	return raw
}

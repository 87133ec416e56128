package service

import (
	"fmt"

	"PhenomenonIndexer/internal/model"
)

// NameFunc display name for a prophet index
type NameFunc func(prophetIndex int) string

// DefaultProphetName "Prophet N"
func DefaultProphetName(prophetIndex int) string {
	return fmt.Sprintf("Prophet %d", prophetIndex)
}

// Narrate renders one action-log line for ev. eventsDesc is the feed ev belongs to,
// newest first; it is only used to recover the outcome of a forced turn.
// Returns "" for events that have no line.
func Narrate(ev *model.GameEvent, name NameFunc, eventsDesc []*model.GameEvent) string {
	if name == nil {
		name = DefaultProphetName
	}
	var actor, target string
	if ev.ProphetIndex != nil {
		actor = name(*ev.ProphetIndex)
	}
	if ev.TargetIndex != nil {
		target = name(*ev.TargetIndex)
	}
	success := ev.Success != nil && *ev.Success

	switch ev.Type {
	case model.EventProphetEnteredGame:
		if actor == "" {
			return ""
		}
		return actor + " entered the game as a prophet."
	case model.EventGameStarted:
		return "The game started."
	case model.EventGameEnded:
		if actor == "" {
			return "The game ended."
		}
		return fmt.Sprintf("The game ended. %s won.", actor)
	case model.EventGameReset:
		return "A new game was reset."
	case model.EventMiracleAttempted:
		if actor == "" {
			return ""
		}
		if success {
			return actor + " successfully performed a miracle."
		}
		return actor + " failed to perform a miracle and was eliminated."
	case model.EventSmiteAttempted:
		if actor == "" || target == "" {
			return ""
		}
		if success {
			return fmt.Sprintf("%s successfully smote %s and %s was eliminated.", actor, target, target)
		}
		return fmt.Sprintf("%s failed to smite %s and was sent to jail.", actor, target)
	case model.EventAccusation:
		if actor == "" || target == "" {
			return ""
		}
		switch {
		case !success:
			return fmt.Sprintf("%s failed to accuse %s of blasphemy and was sent to jail.", actor, target)
		case ev.TargetIsAlive == nil:
			return fmt.Sprintf("%s successfully accused %s of blasphemy and %s was punished.", actor, target, target)
		case *ev.TargetIsAlive:
			return fmt.Sprintf("%s successfully accused %s of blasphemy and sent %s to jail.", actor, target, target)
		default:
			return fmt.Sprintf("%s successfully accused %s of blasphemy and %s was executed.", actor, target, target)
		}
	case model.EventForceMiracleTriggered:
		if actor == "" {
			return "A miracle was forced."
		}
		outcome := forcedMiracleOutcome(ev, eventsDesc)
		switch {
		case outcome == nil:
			return fmt.Sprintf("%s's turn was forced; a miracle was triggered.", actor)
		case *outcome:
			return fmt.Sprintf("%s's turn was forced; a miracle was triggered. %s succeeded (no change or freed from jail).", actor, actor)
		default:
			return fmt.Sprintf("%s's turn was forced; a miracle was triggered. %s failed and was eliminated.", actor, actor)
		}
	case model.EventGainReligion:
		if target == "" {
			return ""
		}
		return fmt.Sprintf("Tickets were bought for %s.", target)
	case model.EventReligionLost:
		if target == "" {
			return ""
		}
		return fmt.Sprintf("Tickets were sold for %s.", target)
	default:
		return ""
	}
}

// forcedMiracleOutcome finds the miracle attempt that followed a forced turn.
// In a newest-first feed that is the closest miracleAttempted by the same prophet
// listed before the forced event.
func forcedMiracleOutcome(forced *model.GameEvent, eventsDesc []*model.GameEvent) *bool {
	if forced.ProphetIndex == nil {
		return nil
	}
	at := -1
	for i, e := range eventsDesc {
		if e.ID == forced.ID {
			at = i
			break
		}
	}
	if at < 0 {
		return nil
	}
	for j := at - 1; j >= 0; j-- {
		e := eventsDesc[j]
		if e.Type == model.EventMiracleAttempted && e.ProphetIndex != nil && *e.ProphetIndex == *forced.ProphetIndex {
			return e.Success
		}
	}
	return nil
}

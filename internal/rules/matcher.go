package rules

import "github.com/roach88/nudge/internal/ir"

// Matches reports whether any trigger of r matches ev. Status is not
// consulted here; Evaluate filters to waiting reminders first.
func Matches(r ir.Reminder, ev ir.SystemEvent) bool {
	for _, t := range r.Triggers {
		if MatchTrigger(t, ev) {
			return true
		}
	}
	return false
}

// MatchTrigger reports whether a single trigger matches ev.
//
// The activation gate runs before any type-specific check: a trigger whose
// ActivationAt is later than the event timestamp never matches.
func MatchTrigger(t ir.Trigger, ev ir.SystemEvent) bool {
	if t.ActivationAt != nil && ev.Timestamp < *t.ActivationAt {
		return false
	}

	switch ev.Type {
	case ir.EventAppBecameActive:
		return t.Type == ir.TriggerPhoneUnlock

	case ir.EventChargingStateChanged:
		data, ok := ev.Data.(ir.ChargingData)
		return t.Type == ir.TriggerChargingStarted && ok && data.IsCharging

	case ir.EventLocationRegionEntered:
		// Region identity is settled upstream when the geofence is
		// registered, so any region entry qualifies.
		return t.Type == ir.TriggerLocationEnter

	case ir.EventAppOpened:
		if t.Type != ir.TriggerAppOpened {
			return false
		}
		cfg, ok := t.Config.(ir.AppConfig)
		if !ok {
			return false
		}
		data, _ := ev.Data.(ir.AppOpenedData)
		return matchApp(cfg, data)

	case ir.EventScheduledTimeFired:
		// Scheduled reminders are delivered by the exact-time notification
		// source, not selected here.
		return false

	default:
		return false
	}
}

func matchApp(cfg ir.AppConfig, data ir.AppOpenedData) bool {
	if cfg.ActivityName != "" && cfg.ActivityName == data.AppIdentifier {
		return true
	}
	// Backward compatibility: reminders stored before per-activity matching
	// carry only a wildcard bundle id and match any opened app.
	if cfg.BundleID == ir.LegacyAppWildcard {
		return true
	}
	return false
}

package rules

import (
	"time"

	"github.com/roach88/nudge/internal/ir"
)

// Result is the outcome of one evaluation pass.
type Result struct {
	// ToFire holds the reminders to fire, in input order.
	ToFire []ir.Reminder

	// ConsideredCount is the size of the listening set: waiting reminders
	// whose triggers matched, before conditions were applied.
	ConsideredCount int
}

// Evaluate selects the reminders that ev should fire.
//
// Reminders that are not WAITING are never considered. Hours and weekdays are
// read in loc; a nil loc means time.Local.
func Evaluate(reminders []ir.Reminder, ev ir.SystemEvent, ambient ir.AmbientState, loc *time.Location) Result {
	var listening []ir.Reminder
	for _, r := range reminders {
		if r.Status == ir.StatusWaiting && Matches(r, ev) {
			listening = append(listening, r)
		}
	}

	res := Result{ConsideredCount: len(listening)}
	if len(listening) == 0 {
		return res
	}

	ctx := BuildContext(ev, ambient, loc)
	for _, r := range listening {
		if EvaluateAll(r, ctx) {
			res.ToFire = append(res.ToFire, r)
		}
	}
	return res
}

// BuildContext derives the evaluation context for ev. Ambient state is the
// base; data carried by the event overrides it.
func BuildContext(ev ir.SystemEvent, ambient ir.AmbientState, loc *time.Location) ir.EvaluationContext {
	ctx := ir.EvaluationContext{
		CurrentTime:     ir.Millis(ev.Timestamp, loc),
		IsCharging:      ambient.IsCharging,
		CurrentLocation: ambient.Location,
		LastOpenedApp:   ambient.LastOpenedApp,
	}

	switch data := ev.Data.(type) {
	case ir.ChargingData:
		if ev.Type == ir.EventChargingStateChanged {
			ctx.IsCharging = data.IsCharging
		}
	case ir.RegionData:
		if ev.Type == ir.EventLocationRegionEntered {
			ctx.CurrentLocation = &ir.Location{Latitude: data.Latitude, Longitude: data.Longitude}
		}
	case ir.AppOpenedData:
		if ev.Type == ir.EventAppOpened {
			ctx.LastOpenedApp = data.AppIdentifier
		}
	}
	return ctx
}

// ApplyEvent folds the facts carried by ev into ambient and returns the
// result. Later events win.
func ApplyEvent(ambient ir.AmbientState, ev ir.SystemEvent) ir.AmbientState {
	ctx := BuildContext(ev, ambient, time.UTC)
	return ir.AmbientState{
		IsCharging:    ctx.IsCharging,
		Location:      ctx.CurrentLocation,
		LastOpenedApp: ctx.LastOpenedApp,
	}
}

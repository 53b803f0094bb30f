package rules

import (
	"slices"

	"github.com/roach88/nudge/internal/geo"
	"github.com/roach88/nudge/internal/ir"
)

// EvaluateCondition reports whether c holds in ctx. A config that does not
// agree with the condition's type, or an unknown type, evaluates to false.
func EvaluateCondition(c ir.Condition, ctx ir.EvaluationContext) bool {
	switch cfg := c.Config.(type) {
	case ir.TimeRangeConfig:
		return c.Type == ir.ConditionTimeRange && inHourRange(ctx.CurrentTime.Hour(), cfg.StartHour, cfg.EndHour)
	case ir.DayOfWeekConfig:
		return c.Type == ir.ConditionDayOfWeek && slices.Contains(cfg.Days, int(ctx.CurrentTime.Weekday()))
	case ir.ChargingConfig:
		return c.Type == ir.ConditionIsCharging && ctx.IsCharging == cfg.Required
	case ir.LocationConfig:
		if c.Type != ir.ConditionAtLocation || ctx.CurrentLocation == nil {
			return false
		}
		loc := ctx.CurrentLocation
		return geo.Within(loc.Latitude, loc.Longitude, cfg.Latitude, cfg.Longitude, cfg.Radius)
	default:
		return false
	}
}

// EvaluateAll reports whether every condition of r holds in ctx.
func EvaluateAll(r ir.Reminder, ctx ir.EvaluationContext) bool {
	for _, c := range r.Conditions {
		if !EvaluateCondition(c, ctx) {
			return false
		}
	}
	return true
}

// inHourRange compares whole hours only; minutes are ignored. A start after
// the end wraps past midnight.
func inHourRange(hour, start, end int) bool {
	if start > end {
		return hour >= start || hour <= end
	}
	return hour >= start && hour <= end
}

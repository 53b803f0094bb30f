package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/nudge/internal/ir"
)

// schemaSource closes the shape of a reminder definition so that typos
// ("trigers", "radus") surface as CUE errors with positions instead of
// silently dropped fields.
const schemaSource = `
#Trigger: {
	id:             string
	type:           string
	activation_at?: int
	config?:        {...}
}

#Condition: {
	id:      string
	type:    string
	config?: {...}
}

#Reminder: {
	// title is checked by CompileReminder so a missing one reports its field.
	title?:       string
	description?: string
	created_at?:  int
	expires_at?:  int
	triggers: [...#Trigger]
	conditions?: [...#Condition]
}
`

// CompileReminder parses a CUE value into a WAITING Reminder.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the reminder struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`reminder: water: { title: "Water plants", triggers: [...] }`)
//	r, err := CompileReminder(v.LookupPath(cue.ParsePath("reminder.water")))
//
// The struct label is the reminder ID. Trigger and condition configs are
// decoded by their type tag; an unknown tag yields an opaque config that
// Validate reports.
func CompileReminder(v cue.Value) (*ir.Reminder, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	r := &ir.Reminder{Status: ir.StatusWaiting}

	// The label must be read before unification rebinds the path.
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		r.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("reminder_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile reminder schema: %w", err)
	}
	v = schema.LookupPath(cue.ParsePath("#Reminder")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var err error
	if r.Title, err = lookupString(v, "title", true); err != nil {
		return nil, err
	}
	if r.Description, err = lookupString(v, "description", false); err != nil {
		return nil, err
	}
	if r.ExpiresAt, err = lookupInt(v, "expires_at"); err != nil {
		return nil, err
	}
	createdAt, err := lookupInt(v, "created_at")
	if err != nil {
		return nil, err
	}
	if createdAt != nil {
		r.CreatedAt = *createdAt
	}

	r.Triggers, err = parseTriggers(v)
	if err != nil {
		return nil, err
	}
	if len(r.Triggers) == 0 {
		return nil, &CompileError{
			Field:   "triggers",
			Message: "at least one trigger is required",
			Pos:     v.Pos(),
		}
	}

	r.Conditions, err = parseConditions(v)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// parseTriggers extracts the ordered trigger list.
func parseTriggers(v cue.Value) ([]ir.Trigger, error) {
	listVal := v.LookupPath(cue.ParsePath("triggers"))
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var triggers []ir.Trigger
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		field := fmt.Sprintf("triggers[%d]", i)

		t := ir.Trigger{}
		if t.ID, err = lookupString(item, "id", true); err != nil {
			return nil, err
		}
		typ, err := lookupString(item, "type", true)
		if err != nil {
			return nil, err
		}
		t.Type = ir.TriggerType(typ)
		if t.ActivationAt, err = lookupInt(item, "activation_at"); err != nil {
			return nil, err
		}

		raw, pos, err := lookupConfig(item)
		if err != nil {
			return nil, err
		}
		t.Config, err = ir.DecodeTriggerConfig(t.Type, raw)
		if err != nil {
			return nil, &CompileError{Field: field + ".config", Message: err.Error(), Pos: pos}
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}

// parseConditions extracts the optional condition list.
func parseConditions(v cue.Value) ([]ir.Condition, error) {
	listVal := v.LookupPath(cue.ParsePath("conditions"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var conditions []ir.Condition
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		field := fmt.Sprintf("conditions[%d]", i)

		c := ir.Condition{}
		if c.ID, err = lookupString(item, "id", true); err != nil {
			return nil, err
		}
		typ, err := lookupString(item, "type", true)
		if err != nil {
			return nil, err
		}
		c.Type = ir.ConditionType(typ)

		raw, pos, err := lookupConfig(item)
		if err != nil {
			return nil, err
		}
		c.Config, err = ir.DecodeConditionConfig(c.Type, raw)
		if err != nil {
			return nil, &CompileError{Field: field + ".config", Message: err.Error(), Pos: pos}
		}
		conditions = append(conditions, c)
	}
	return conditions, nil
}

// lookupConfig renders the config struct as JSON so ir's typed decoders
// apply the same rules as the API and the store.
func lookupConfig(v cue.Value) (json.RawMessage, token.Pos, error) {
	cfgVal := v.LookupPath(cue.ParsePath("config"))
	if !cfgVal.Exists() {
		return nil, v.Pos(), nil
	}
	raw, err := cfgVal.MarshalJSON()
	if err != nil {
		return nil, cfgVal.Pos(), formatCUEError(err)
	}
	return raw, cfgVal.Pos(), nil
}

func lookupString(v cue.Value, field string, required bool) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		if required {
			return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
		}
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func lookupInt(v cue.Value, field string) (*int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &n, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

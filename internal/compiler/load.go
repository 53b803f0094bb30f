package compiler

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/nudge/internal/ir"
)

// CompileAll compiles every reminder under the top-level `reminder` field
// of v. It collects all compile errors rather than stopping at the first;
// reminders that compiled are returned alongside them, ordered by id.
func CompileAll(v cue.Value) ([]ir.Reminder, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	remindersVal := v.LookupPath(cue.ParsePath("reminder"))
	if !remindersVal.Exists() {
		return nil, []error{&CompileError{Field: "reminder", Message: "no reminders defined", Pos: v.Pos()}}
	}

	iter, err := remindersVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		reminders []ir.Reminder
		errs      []error
	)
	for iter.Next() {
		r, err := CompileReminder(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("reminder.%s: %w", iter.Selector(), err))
			continue
		}
		reminders = append(reminders, *r)
	}

	sort.Slice(reminders, func(i, j int) bool { return reminders[i].ID < reminders[j].ID })
	return reminders, errs
}

// CompileFile compiles the reminders in a single CUE file.
func CompileFile(path string) ([]ir.Reminder, []error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read %s: %w", path, err)}
	}
	ctx := cuecontext.New()
	return CompileAll(ctx.CompileBytes(src, cue.Filename(path)))
}

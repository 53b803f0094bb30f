package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nudge/internal/ir"
)

// Scenario defines a reminder lifecycle scenario: a starting world, a
// sequence of system events, and assertions on what fired.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Timezone for TIME_RANGE and DAY_OF_WEEK. Default: UTC, so golden
	// traces do not depend on the machine running them.
	Timezone string `yaml:"timezone,omitempty"`

	// Ambient is the device state before the first event.
	Ambient AmbientSpec `yaml:"ambient,omitempty"`

	// Definitions lists CUE files whose reminders are loaded. Paths are
	// relative to the scenario file.
	Definitions []string `yaml:"definitions,omitempty"`

	// Reminders are inline reminder records in the JSON wire shape.
	Reminders []map[string]any `yaml:"reminders,omitempty"`

	// Events are delivered in order, one at a time.
	Events []map[string]any `yaml:"events"`

	// Failures inject notify and persist errors per reminder.
	Failures []Failure `yaml:"failures,omitempty"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`

	// dir is the scenario file's directory, for resolving Definitions.
	dir string
}

// AmbientSpec is the YAML form of ir.AmbientState.
type AmbientSpec struct {
	IsCharging    bool          `yaml:"is_charging"`
	Location      *LocationSpec `yaml:"location,omitempty"`
	LastOpenedApp string        `yaml:"last_opened_app,omitempty"`
}

// LocationSpec is a point in decimal degrees.
type LocationSpec struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// State converts the YAML form to the engine type.
func (a AmbientSpec) State() ir.AmbientState {
	s := ir.AmbientState{IsCharging: a.IsCharging, LastOpenedApp: a.LastOpenedApp}
	if a.Location != nil {
		s.Location = &ir.Location{Latitude: a.Location.Latitude, Longitude: a.Location.Longitude}
	}
	return s
}

// Failure injects errors for one reminder.
type Failure struct {
	Reminder string `yaml:"reminder"`

	// Notify fails every notification with this message.
	Notify string `yaml:"notify,omitempty"`

	// NotifyTimes fails only the first N notifications.
	NotifyTimes int `yaml:"notify_times,omitempty"`

	// Persist fails every save of the FIRED record with this message.
	Persist string `yaml:"persist,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "status": reminder ends in Status
	// - "fired_at": reminder's fired_at equals FiredAt (null: not fired)
	// - "notify_count": reminder was notified Count times
	// - "fired_order": reminders reached FIRED in exactly this order
	// - "error_class": reminder had an outcome of Class (at Event, if set)
	Type string `yaml:"type"`

	Reminder  string   `yaml:"reminder,omitempty"`
	Status    string   `yaml:"status,omitempty"`
	FiredAt   *int64   `yaml:"fired_at,omitempty"`
	Count     int      `yaml:"count,omitempty"`
	Reminders []string `yaml:"reminders,omitempty"`
	Class     string   `yaml:"class,omitempty"`

	// Event is a 1-based index into Events.
	Event int `yaml:"event,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus      = "status"
	AssertFiredAt     = "fired_at"
	AssertNotifyCount = "notify_count"
	AssertFiredOrder  = "fired_order"
	AssertErrorClass  = "error_class"
)

// DefinitionNotFoundError is returned when a scenario references a CUE file
// that does not exist.
type DefinitionNotFoundError struct {
	Scenario     string
	Path         string
	ResolvedPath string
}

// Error implements the error interface.
func (e *DefinitionNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q references definitions %q which does not exist (resolved to: %s)",
		e.Scenario, e.Path, e.ResolvedPath)
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	scenario.dir = filepath.Dir(path)

	if err := scenario.checkDefinitions(); err != nil {
		return nil, err
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Definitions resolve against the
// working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// DefinitionPaths returns Definitions resolved against the scenario file.
func (s *Scenario) DefinitionPaths() []string {
	paths := make([]string, len(s.Definitions))
	for i, p := range s.Definitions {
		if !filepath.IsAbs(p) && s.dir != "" {
			p = filepath.Join(s.dir, p)
		}
		paths[i] = p
	}
	return paths
}

func (s *Scenario) checkDefinitions() error {
	for i, p := range s.DefinitionPaths() {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return &DefinitionNotFoundError{Scenario: s.Name, Path: s.Definitions[i], ResolvedPath: p}
		}
	}
	return nil
}

// ParsedReminders decodes the inline reminders through the JSON wire form.
func (s *Scenario) ParsedReminders() ([]ir.Reminder, error) {
	out := make([]ir.Reminder, 0, len(s.Reminders))
	for i, raw := range s.Reminders {
		var r ir.Reminder
		if err := viaJSON(raw, &r); err != nil {
			return nil, fmt.Errorf("reminders[%d]: %w", i, err)
		}
		if r.Status == "" {
			r.Status = ir.StatusWaiting
		}
		out = append(out, r)
	}
	return out, nil
}

// ParsedEvents decodes the events through the JSON wire form.
func (s *Scenario) ParsedEvents() ([]ir.SystemEvent, error) {
	out := make([]ir.SystemEvent, 0, len(s.Events))
	for i, raw := range s.Events {
		var ev ir.SystemEvent
		if err := viaJSON(raw, &ev); err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func viaJSON(in map[string]any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Reminders) == 0 && len(s.Definitions) == 0 {
		return fmt.Errorf("reminders or definitions are required")
	}

	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := s.ParsedReminders(); err != nil {
		return err
	}
	if _, err := s.ParsedEvents(); err != nil {
		return err
	}

	for i, f := range s.Failures {
		if f.Reminder == "" {
			return fmt.Errorf("failures[%d]: reminder is required", i)
		}
		if f.Notify == "" && f.NotifyTimes == 0 && f.Persist == "" {
			return fmt.Errorf("failures[%d]: one of notify, notify_times or persist is required", i)
		}
		if f.NotifyTimes < 0 {
			return fmt.Errorf("failures[%d]: notify_times must be non-negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Events)); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, events int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatus:
		if a.Reminder == "" {
			return fmt.Errorf("assertions[%d]: reminder is required for status", index)
		}
		if !ir.Status(a.Status).Valid() {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	case AssertFiredAt, AssertNotifyCount:
		if a.Reminder == "" {
			return fmt.Errorf("assertions[%d]: reminder is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFiredOrder:
		if a.Reminders == nil {
			return fmt.Errorf("assertions[%d]: reminders list is required for fired_order", index)
		}
	case AssertErrorClass:
		if a.Reminder == "" || a.Class == "" {
			return fmt.Errorf("assertions[%d]: reminder and class are required for error_class", index)
		}
		if a.Event < 0 || a.Event > events {
			return fmt.Errorf("assertions[%d]: event %d out of range 1..%d", index, a.Event, events)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

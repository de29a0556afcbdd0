package flow

import (
	"github.com/nerrad567/lyngdorf-core/internal/entry"
)

// StepID names a flow step.
type StepID string

const (
	StepUser     StepID = "user"
	StepManual   StepID = "manual"
	StepSSDP     StepID = "ssdp"
	StepConfirm  StepID = "confirm"
	StepIgnore   StepID = "ignore"
	StepUnignore StepID = "unignore"
)

// ResultType says whether a flow waits for input or has finished.
type ResultType string

const (
	ResultForm        ResultType = "form"
	ResultAbort       ResultType = "abort"
	ResultCreateEntry ResultType = "create_entry"
)

// Abort reasons.
const (
	ReasonAlreadyConfigured = "already_configured"
	ReasonAlreadyInProgress = "already_in_progress"
	ReasonMACNotFound       = "mac_not_found"
	ReasonAbandoned         = "abandoned"
)

// Form error codes, keyed by field name or "base".
const (
	ErrorCannotConnect    = "cannot_connect"
	ErrorUnsupportedModel = "unsupported_model"
	ErrorMACNotFound      = "mac_not_found"
	ErrorRequired         = "required"
	ErrorInvalidSelection = "invalid_selection"
)

// Form field names.
const (
	FieldHost     = "host"
	FieldName     = "name"
	FieldUniqueID = "unique_id"
	FieldTitle    = "title"
	FieldFlowID   = "flow_id"
)

// Field describes one form input.
type Field struct {
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Default  string   `json:"default,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// Result is the outcome of starting or advancing a flow.
type Result struct {
	FlowID       string             `json:"flow_id"`
	Source       entry.Source       `json:"source"`
	Type         ResultType         `json:"type"`
	StepID       StepID             `json:"step_id,omitempty"`
	Fields       []Field            `json:"fields,omitempty"`
	Errors       map[string]string  `json:"errors,omitempty"`
	Placeholders map[string]string  `json:"placeholders,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	Title        string             `json:"title,omitempty"`
	Entry        *entry.ConfigEntry `json:"entry,omitempty"`
}

// Done reports whether the flow has finished.
func (r Result) Done() bool {
	return r.Type == ResultAbort || r.Type == ResultCreateEntry
}

func form(step StepID, fields []Field, errs map[string]string) Result {
	return Result{Type: ResultForm, StepID: step, Fields: fields, Errors: errs}
}

func abort(reason string) Result {
	return Result{Type: ResultAbort, Reason: reason}
}

func manualForm(errs map[string]string, host, name string) Result {
	if name == "" {
		name = defaultName
	}
	return form(StepManual, []Field{
		{Name: FieldHost, Required: true, Default: host},
		{Name: FieldName, Default: name},
	}, errs)
}

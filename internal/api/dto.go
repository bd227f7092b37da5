package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/othala/internal/fileops"
	"github.com/starford/othala/internal/organizer"
	"github.com/starford/othala/internal/rules"
)

// SaveRuleRequest is the request body for creating or updating a rule.
type SaveRuleRequest struct {
	Name        string   `json:"name" example:"Invoices" validate:"required"`
	Description string   `json:"description" example:"Incoming invoices and receipts"`
	Keywords    []string `json:"keywords" example:"invoice,receipt"`
	Destination string   `json:"destination" example:"Finance/Invoices" validate:"required"`
	Active      *bool    `json:"active" example:"true"`
}

// Validate checks the rule payload. A rule needs a name, a destination, and
// at least one source of keywords.
func (r SaveRuleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Destination, validation.Required),
		validation.Field(&r.Keywords, validation.Required.When(r.Description == "").Error("either keywords or description is required")),
	)
}

// SettingsRequest is the request body for PUT /settings.
type SettingsRequest struct {
	InboxPath         string `json:"inbox_path" example:"/home/user/Inbox" validate:"required"`
	ArchivePath       string `json:"archive_path" example:"/home/user/Archive" validate:"required"`
	MonitoringEnabled bool   `json:"monitoring_enabled" example:"true"`
}

// Validate checks the settings payload.
func (s SettingsRequest) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.InboxPath, validation.Required),
		validation.Field(&s.ArchivePath, validation.Required),
	)
}

// ProcessRequest is the request body for POST /process.
type ProcessRequest struct {
	Path string `json:"path" example:"/home/user/Inbox/invoice.pdf" validate:"required"`
}

// StatusResponse reports the pipeline state.
type StatusResponse struct {
	State       organizer.State `json:"state"`
	WatchedPath string          `json:"watched_path,omitempty"`
	RuleCount   int             `json:"rule_count"`
}

// RuleListResponse wraps rule listings.
type RuleListResponse struct {
	Rules []rules.Rule `json:"rules" validate:"required"`
	Total int          `json:"total" example:"4" validate:"required"`
}

// OperationListResponse wraps the undoable operation history, newest first.
type OperationListResponse struct {
	Operations []fileops.FileOperation `json:"operations" validate:"required"`
}

// MoveListResponse wraps recent move-log rows, newest first.
type MoveListResponse struct {
	Moves []rules.MoveRecord `json:"moves" validate:"required"`
}

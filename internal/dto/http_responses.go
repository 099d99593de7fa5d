package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"
)

// RegistrationForm carries the raw public form submission. Which of the
// profile fields matter depends on the configured registration profile;
// validation happens on the profile structs below so that the first
// violated rule is reported in the documented order.
type RegistrationForm struct {
	EventID     string `form:"evento_id"`
	FirstName   string `form:"nome"`
	LastName    string `form:"cognome"`
	BirthDate   string `form:"data_nascita"`
	BirthPlace  string `form:"luogo_nascita"`
	AgeBracket  string `form:"eta_fascia"`
	ArrivalTime string `form:"orario_arrivo"`
	Consent     string `form:"consenso"`
	Phone       string `form:"telefono"`
}

// NameFields covers the rules shared by both profiles.
type NameFields struct {
	FirstName string `validate:"required,max=100"`
	LastName  string `validate:"required,max=100"`
}

// AnagraficaFields are the extra rules of the "anagrafica" profile.
// Birth date parsing and the minimum-age rule are computed checks and
// live in the service.
type AnagraficaFields struct {
	BirthDate  string `validate:"required"`
	BirthPlace string `validate:"required,max=100"`
}

// SerataFields are the extra rules of the "serata" profile.
type SerataFields struct {
	AgeBracket  string `validate:"required,fascia"`
	ArrivalTime string `validate:"required,hhmm"`
	Consent     string `validate:"required"`
}

type LoginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

type CreateEventForm struct {
	Name        string `form:"nome" validate:"required,max=200"`
	Description string `form:"descrizione"`
	Price       string `form:"prezzo"`
	EventDate   string `form:"data_evento"`
}

// DeleteRegistrationRequest is the JSON body of POST /admin/delete.
// PersonaID is a pointer so a missing field can be told apart from zero.
type DeleteRegistrationRequest struct {
	PersonaID *int64 `json:"persona_id"`
}

type DeleteRegistrationResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuditMessage is published on admissions and deletions and consumed by
// the audit worker.
type AuditMessage struct {
	Action         string    `json:"action"`
	EventID        int64     `json:"event_id"`
	RegistrationID int64     `json:"registration_id"`
	Phone          string    `json:"phone"`
	OccurredAt     time.Time `json:"occurred_at"`
}

const (
	AuditActionRegistered = "registered"
	AuditActionDeleted    = "deleted"
)

func DeleteOKResponse(c *ginext.Context, message string) {
	c.JSON(200, DeleteRegistrationResponse{OK: true, Message: message})
}

func DeleteErrorResponse(c *ginext.Context, status int, desc string) {
	c.JSON(status, DeleteRegistrationResponse{OK: false, Error: desc})
}

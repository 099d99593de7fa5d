package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"
	"golang.org/x/crypto/bcrypt"

	"iscrizioni/internal/dto"
	"iscrizioni/internal/model"
	"iscrizioni/internal/rabbit"
	"iscrizioni/internal/ratelimit"
	"iscrizioni/internal/repo"
	"iscrizioni/pkg/phone"
	"iscrizioni/pkg/tz"
	"iscrizioni/pkg/validator"
)

// Registration profiles: which extra fields the public form collects.
const (
	ProfileAnagrafica = "anagrafica"
	ProfileSerata     = "serata"
)

const minAge = 12

// Session keys shared with cmd/middleware.
const (
	SessionLoggedIn = "user_logged_in"
	SessionUsername = "username"
	SessionRole     = "user_role"
	SessionUserName = "user_name"
)

// AdminCredentials is the single admin user. The hash is computed at
// startup; no plaintext password is kept around after that.
type AdminCredentials struct {
	Username     string
	PasswordHash []byte
}

type Service interface {
	RegisterPage(ctx *ginext.Context)
	Register(ctx *ginext.Context)
	LoginPage(ctx *ginext.Context)
	Login(ctx *ginext.Context)
	Logout(ctx *ginext.Context)
	Dashboard(ctx *ginext.Context)
	EventList(ctx *ginext.Context)
	EventDetail(ctx *ginext.Context)
	Statistics(ctx *ginext.Context)
	CreateEventPage(ctx *ginext.Context)
	CreateEvent(ctx *ginext.Context)
	DeleteRegistration(ctx *ginext.Context)
}

type service struct {
	repo    repo.Repository
	log     *zerolog.Logger
	limiter *ratelimit.Limiter
	rbt     *rabbit.Client // nil when audit publishing is disabled
	creds   AdminCredentials
	profile string
}

func NewService(repo repo.Repository, logger *zerolog.Logger, limiter *ratelimit.Limiter, rbt *rabbit.Client, creds AdminCredentials, profile string) Service {
	return &service{
		repo:    repo,
		log:     logger,
		limiter: limiter,
		rbt:     rbt,
		creds:   creds,
		profile: profile,
	}
}

var fieldMessages = map[string]string{
	"FirstName":   "Nome non valido (max 100 caratteri).",
	"LastName":    "Cognome non valido (max 100 caratteri).",
	"BirthDate":   "Data di nascita obbligatoria.",
	"BirthPlace":  "Luogo di nascita non valido (max 100 caratteri).",
	"AgeBracket":  "Fascia d'età non valida.",
	"ArrivalTime": "Orario di arrivo non valido (usa il formato HH:MM).",
	"Consent":     "Devi acconsentire al trattamento dei dati.",
	"Name":        "Nome evento obbligatorio (max 200 caratteri).",
}

func formMessage(verr *validator.FieldError) string {
	if msg, ok := fieldMessages[verr.Field]; ok {
		return msg
	}
	return verr.Error()
}

func (s *service) RegisterPage(ctx *ginext.Context) {
	s.renderRegister(ctx, &dto.RegistrationForm{}, "", "")
}

// Register runs the admission workflow: ordered validation, phone
// normalization, then the transactional active-event / duplicate check /
// insert in the repository. Every failure re-renders the form with the
// submitted values and a single message, HTTP 200.
func (s *service) Register(ctx *ginext.Context) {
	var form dto.RegistrationForm
	if err := ctx.ShouldBind(&form); err != nil {
		s.log.Error().Err(err).Msg("failed to parse registration form")
		s.renderRegister(ctx, &dto.RegistrationForm{}, "Dati del modulo non validi.", "")
		return
	}
	trimRegistrationForm(&form)

	if form.EventID == "" {
		s.renderRegister(ctx, &form, "Seleziona un evento.", "")
		return
	}
	eventID, err := strconv.ParseInt(form.EventID, 10, 64)
	if err != nil {
		s.renderRegister(ctx, &form, "Evento non valido.", "")
		return
	}

	if verr := validator.Validate(ctx, dto.NameFields{FirstName: form.FirstName, LastName: form.LastName}); verr != nil {
		s.renderRegister(ctx, &form, formMessage(verr), "")
		return
	}

	switch s.profile {
	case ProfileAnagrafica:
		if verr := validator.Validate(ctx, dto.AnagraficaFields{BirthDate: form.BirthDate, BirthPlace: form.BirthPlace}); verr != nil {
			s.renderRegister(ctx, &form, formMessage(verr), "")
			return
		}
		birth, err := time.Parse("2006-01-02", form.BirthDate)
		if err != nil {
			s.renderRegister(ctx, &form, "Data di nascita non valida.", "")
			return
		}
		if age := yearsBetween(birth, tz.Now()); age < minAge {
			s.renderRegister(ctx, &form,
				fmt.Sprintf("Devi avere almeno %d anni per registrarti. Età attuale: %d anni.", minAge, age), "")
			return
		}
	default:
		if verr := validator.Validate(ctx, dto.SerataFields{AgeBracket: form.AgeBracket, ArrivalTime: form.ArrivalTime, Consent: form.Consent}); verr != nil {
			s.renderRegister(ctx, &form, formMessage(verr), "")
			return
		}
	}

	if form.Phone == "" {
		s.renderRegister(ctx, &form, "Numero di telefono obbligatorio.", "")
		return
	}
	normalized := phone.Normalize(form.Phone)
	if !strings.HasPrefix(normalized, "3") {
		s.renderRegister(ctx, &form, "Il numero di telefono deve iniziare con 3.", "")
		return
	}
	if len(normalized) < 9 || len(normalized) > 15 {
		s.renderRegister(ctx, &form, "Il numero di telefono deve avere tra 9 e 15 cifre.", "")
		return
	}

	reg := &model.Registration{
		EventID:     int(eventID),
		FirstName:   form.FirstName,
		LastName:    form.LastName,
		Phone:       normalized,
		BirthDate:   form.BirthDate,
		BirthPlace:  form.BirthPlace,
		AgeBracket:  form.AgeBracket,
		ArrivalTime: form.ArrivalTime,
	}
	if s.profile == ProfileAnagrafica {
		reg.AgeBracket, reg.ArrivalTime = "", ""
	} else {
		reg.BirthDate, reg.BirthPlace = "", ""
	}

	id, err := s.repo.CreateRegistrationTx(ctx.Request.Context(), reg)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrEventNotFound):
			s.renderRegister(ctx, &form, "Evento non valido o non più disponibile.", "")
		case errors.Is(err, repo.ErrDuplicateRegistration):
			s.renderRegister(ctx, &form, "Sei già registrato per questo evento.", "")
		default:
			s.log.Error().Err(err).Msg("failed to create registration")
			s.renderRegister(ctx, &form, "Si è verificato un errore durante la registrazione. Riprova.", "")
		}
		return
	}

	s.log.Info().Int64("registration_id", id).Int64("event_id", eventID).Msg("registration created successfully")
	s.publishAudit(dto.AuditActionRegistered, eventID, id, normalized)

	s.renderRegister(ctx, &dto.RegistrationForm{}, "", "Registrazione completata con successo!")
}

func (s *service) renderRegister(ctx *ginext.Context, form *dto.RegistrationForm, errMsg, successMsg string) {
	ctx.HTML(http.StatusOK, "register.html", gin.H{
		"eventi":  s.activeEvents(ctx),
		"error":   errMsg,
		"success": successMsg,
		"form":    form,
		"profile": s.profile,
		"fasce":   validator.AgeBrackets,
	})
}

func (s *service) activeEvents(ctx *ginext.Context) []model.Event {
	event, err := s.repo.GetActiveEvent(ctx.Request.Context())
	if err != nil {
		if !errors.Is(err, repo.ErrEventNotFound) {
			s.log.Error().Err(err).Msg("failed to load active event")
		}
		return nil
	}
	return []model.Event{*event}
}

func (s *service) LoginPage(ctx *ginext.Context) {
	ctx.HTML(http.StatusOK, "admin_login.html", gin.H{})
}

func (s *service) Login(ctx *ginext.Context) {
	ip := ctx.ClientIP()

	allowed, wait := s.limiter.CheckAllowed(ip)
	if !allowed {
		secs := int(wait.Seconds())
		ctx.HTML(http.StatusOK, "admin_login.html", gin.H{
			"error": fmt.Sprintf("Troppi tentativi di login falliti. Riprova tra %d minuti e %d secondi.", secs/60, secs%60),
		})
		return
	}

	var form dto.LoginForm
	_ = ctx.ShouldBind(&form)
	username := strings.TrimSpace(form.Username)
	password := strings.TrimSpace(form.Password)

	if username == "" || password == "" {
		s.limiter.RecordFailure(ip)
		ctx.HTML(http.StatusOK, "admin_login.html", gin.H{"error": "Username e password sono obbligatori"})
		return
	}

	if strings.EqualFold(username, s.creds.Username) &&
		bcrypt.CompareHashAndPassword(s.creds.PasswordHash, []byte(password)) == nil {
		s.limiter.ClearOnSuccess(ip)

		sess := sessions.Default(ctx)
		sess.Set(SessionLoggedIn, true)
		sess.Set(SessionUsername, s.creds.Username)
		sess.Set(SessionRole, "admin")
		sess.Set(SessionUserName, "Admin")
		if err := sess.Save(); err != nil {
			s.log.Error().Err(err).Msg("failed to save session")
			ctx.HTML(http.StatusOK, "admin_login.html", gin.H{"error": "Si è verificato un errore. Riprova."})
			return
		}

		s.log.Info().Str("username", s.creds.Username).Str("ip", ip).Msg("admin logged in")
		ctx.Redirect(http.StatusFound, "/admin")
		return
	}

	s.limiter.RecordFailure(ip)
	s.log.Warn().Str("ip", ip).Msg("failed admin login attempt")
	ctx.HTML(http.StatusOK, "admin_login.html", gin.H{"error": "Username o password errati"})
}

func (s *service) Logout(ctx *ginext.Context) {
	sess := sessions.Default(ctx)
	sess.Clear()
	if err := sess.Save(); err != nil {
		s.log.Error().Err(err).Msg("failed to clear session")
	}
	ctx.Redirect(http.StatusFound, "/admin/login")
}

// Dashboard shows every event with its registrant count plus the detail
// of the current event: the one from the evento_id query parameter when
// present, otherwise the active one. Storage errors are logged and the
// page renders with empty data.
func (s *service) Dashboard(ctx *ginext.Context) {
	rc := ctx.Request.Context()

	events, err := s.repo.GetAllEvents(rc)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load events for dashboard")
	}

	var current *model.Event
	if q := ctx.Query("evento_id"); q != "" {
		if id, err := strconv.ParseInt(q, 10, 64); err == nil {
			current, _ = s.repo.GetEventByID(rc, id)
		}
	}
	if current == nil {
		current, err = s.repo.GetActiveEvent(rc)
		if err != nil && !errors.Is(err, repo.ErrEventNotFound) {
			s.log.Error().Err(err).Msg("failed to load active event for dashboard")
		}
	}

	var registrants []model.Registration
	total := 0
	if current != nil {
		if total, err = s.repo.CountRegistrations(rc, int64(current.ID)); err != nil {
			s.log.Error().Err(err).Msg("failed to count registrations")
		}
		if registrants, err = s.repo.GetRegistrationsByEventID(rc, int64(current.ID)); err != nil {
			s.log.Error().Err(err).Msg("failed to load registrations")
		}
	}

	sess := sessions.Default(ctx)
	userName, _ := sess.Get(SessionUserName).(string)
	if userName == "" {
		userName = "Admin"
	}

	ctx.HTML(http.StatusOK, "admin.html", gin.H{
		"eventi":          events,
		"evento_corrente": current,
		"totale_iscritti": total,
		"registrati":      registrants,
		"user_name":       userName,
		"profile":         s.profile,
	})
}

func (s *service) EventList(ctx *ginext.Context) {
	events, err := s.repo.GetAllEvents(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load events")
	}
	ctx.HTML(http.StatusOK, "eventi.html", gin.H{"eventi": events})
}

func (s *service) EventDetail(ctx *ginext.Context) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.Redirect(http.StatusFound, "/admin")
		return
	}

	rc := ctx.Request.Context()
	event, err := s.repo.GetEventByID(rc, id)
	if err != nil {
		if !errors.Is(err, repo.ErrEventNotFound) {
			s.log.Error().Err(err).Msg("failed to load event")
		}
		ctx.Redirect(http.StatusFound, "/admin")
		return
	}

	registrants, err := s.repo.GetRegistrationsByEventID(rc, id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load registrations")
	}

	ctx.HTML(http.StatusOK, "evento.html", gin.H{
		"evento":     event,
		"registrati": registrants,
		"totale":     len(registrants),
		"profile":    s.profile,
	})
}

func (s *service) Statistics(ctx *ginext.Context) {
	stats, err := s.repo.Stats(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load statistics")
		stats = &model.Stats{}
	}
	ctx.HTML(http.StatusOK, "statistiche.html", gin.H{"stats": stats, "profile": s.profile})
}

func (s *service) CreateEventPage(ctx *ginext.Context) {
	ctx.HTML(http.StatusOK, "crea_evento.html", gin.H{})
}

// CreateEvent creates a new event and deactivates every other one, so at
// most one event stays active.
func (s *service) CreateEvent(ctx *ginext.Context) {
	var form dto.CreateEventForm
	if err := ctx.ShouldBind(&form); err != nil {
		ctx.HTML(http.StatusOK, "crea_evento.html", gin.H{"error": "Dati del modulo non validi."})
		return
	}
	form.Name = strings.TrimSpace(form.Name)
	form.Description = strings.TrimSpace(form.Description)
	form.Price = strings.TrimSpace(form.Price)
	form.EventDate = strings.TrimSpace(form.EventDate)

	if verr := validator.Validate(ctx, form); verr != nil {
		ctx.HTML(http.StatusOK, "crea_evento.html", gin.H{"error": formMessage(verr), "form": form})
		return
	}

	price := 0.0
	if form.Price != "" {
		if p, err := strconv.ParseFloat(form.Price, 64); err == nil && p > 0 {
			price = p
		}
	}

	if form.EventDate != "" {
		if _, err := time.Parse("2006-01-02", form.EventDate); err != nil {
			ctx.HTML(http.StatusOK, "crea_evento.html", gin.H{"error": "Data evento non valida.", "form": form})
			return
		}
	}

	event := &model.Event{
		Name:        form.Name,
		Description: form.Description,
		Price:       price,
		EventDate:   form.EventDate,
	}
	id, err := s.repo.CreateEvent(ctx.Request.Context(), event)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create event")
		ctx.HTML(http.StatusOK, "crea_evento.html", gin.H{"error": "Errore durante la creazione dell'evento.", "form": form})
		return
	}

	s.log.Info().Int64("event_id", id).Str("name", event.Name).Msg("event created successfully")
	ctx.Redirect(http.StatusFound, "/admin")
}

// DeleteRegistration handles the JSON admin endpoint. Authentication and
// role checks happen in the middleware; outcomes map to 200/400/404/500.
func (s *service) DeleteRegistration(ctx *ginext.Context) {
	var req dto.DeleteRegistrationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.DeleteErrorResponse(ctx, http.StatusBadRequest, "ID persona non valido")
		return
	}
	if req.PersonaID == nil {
		dto.DeleteErrorResponse(ctx, http.StatusBadRequest, "ID persona mancante")
		return
	}
	id := *req.PersonaID

	rc := ctx.Request.Context()
	reg, err := s.repo.GetRegistrationByID(rc, id)
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.DeleteErrorResponse(ctx, http.StatusNotFound, "Persona non trovata")
			return
		}
		s.log.Error().Err(err).Msg("failed to load registration for deletion")
		dto.DeleteErrorResponse(ctx, http.StatusInternalServerError, "Errore durante l'eliminazione")
		return
	}

	if err := s.repo.DeleteRegistration(rc, id); err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.DeleteErrorResponse(ctx, http.StatusNotFound, "Persona non trovata")
			return
		}
		s.log.Error().Err(err).Msg("failed to delete registration")
		dto.DeleteErrorResponse(ctx, http.StatusInternalServerError, "Errore durante l'eliminazione")
		return
	}

	s.log.Info().Int64("registration_id", id).Msg("registration deleted")
	s.publishAudit(dto.AuditActionDeleted, int64(reg.EventID), id, reg.Phone)

	dto.DeleteOKResponse(ctx, fmt.Sprintf("Registrazione di %s %s eliminata con successo", reg.FirstName, reg.LastName))
}

func (s *service) publishAudit(action string, eventID, registrationID int64, phoneNumber string) {
	if s.rbt == nil {
		return
	}
	msg := dto.AuditMessage{
		Action:         action,
		EventID:        eventID,
		RegistrationID: registrationID,
		Phone:          phoneNumber,
		OccurredAt:     tz.Now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal audit message")
		return
	}
	if err := s.rbt.Publish(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to publish audit message")
	}
}

func trimRegistrationForm(form *dto.RegistrationForm) {
	form.EventID = strings.TrimSpace(form.EventID)
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	form.BirthDate = strings.TrimSpace(form.BirthDate)
	form.BirthPlace = strings.TrimSpace(form.BirthPlace)
	form.AgeBracket = strings.TrimSpace(form.AgeBracket)
	form.ArrivalTime = strings.TrimSpace(form.ArrivalTime)
	form.Consent = strings.TrimSpace(form.Consent)
	form.Phone = strings.TrimSpace(form.Phone)
}

// yearsBetween truncates both times to their calendar date and divides
// the day count by 365, matching how the original system computed ages.
func yearsBetween(birth, now time.Time) int {
	b := time.Date(birth.Year(), birth.Month(), birth.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(n.Sub(b).Hours() / 24)
	return days / 365
}

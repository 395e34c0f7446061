package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"officeplanner/internal/config"
	"officeplanner/internal/event"
	"officeplanner/internal/ics"
	appLog "officeplanner/internal/log"
	"officeplanner/internal/store"
)

// maxBodyBytes bounds request bodies of the JSON endpoints.
const maxBodyBytes = 1 << 20

// Events is the event collection served by the API. *store.Store
// satisfies it.
type Events interface {
	List(sortByDate bool) []event.Event
	Select(f store.Filter, sortByDate bool) []event.Event
	Upcoming(days int) []event.Event
	DueForNotification() []event.Event
	Get(id string) (event.Event, bool)
	Add(ev event.Event) (event.Event, error)
	Replace(id string, ev event.Event) error
	Remove(id string) bool
	MarkNotified(id string) error
}

// Tester sends the test notification. *scheduler.Scheduler satisfies it.
type Tester interface {
	SendTestNotification(ctx context.Context) error
}

// Server exposes the event collection over a small JSON API.
type Server struct {
	cfg    *config.Config
	events Events
	tester Tester
	now    func() time.Time
	router *mux.Router
}

// NewServer constructs a new Server. tester may be nil, in which case the
// test-notification endpoint reports 503.
func NewServer(cfg *config.Config, events Events, tester Tester) *Server {
	s := &Server{
		cfg:    cfg,
		events: events,
		tester: tester,
		now:    time.Now,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server, wrapped with CORS
// and Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	if len(s.cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}).Handler(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Planer", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/events", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/events/upcoming", s.handleUpcoming).Methods(http.MethodGet)
	api.HandleFunc("/events/due", s.handleDue).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}", s.handleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/events/{id}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/events/{id}/notified", s.handleMarkNotified).Methods(http.MethodPost)
	api.HandleFunc("/notifications/test", s.handleTestNotification).Methods(http.MethodPost)
	api.HandleFunc("/tags", s.handleTags).Methods(http.MethodGet)
	api.HandleFunc("/calendar.ics", s.handleCalendar).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is the JSON view of an event, with derived display fields.
type eventDTO struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	DateTime            time.Time `json:"date_time"`
	NotificationMinutes int       `json:"notification_minutes"`
	Notified            bool      `json:"notified"`
	Tags                []string  `json:"tags"`
	Status              string    `json:"status"`
	TimeUntil           string    `json:"time_until"`
}

func toDTO(ev event.Event, now time.Time) eventDTO {
	tags := ev.Tags
	if tags == nil {
		tags = []string{}
	}
	return eventDTO{
		ID:                  ev.ID,
		Title:               ev.Title,
		Description:         ev.Description,
		DateTime:            ev.DateTime,
		NotificationMinutes: ev.NotificationMinutes,
		Notified:            ev.Notified,
		Tags:                tags,
		Status:              string(ev.StatusAt(now)),
		TimeUntil:           ev.TimeUntil(now),
	}
}

func (s *Server) writeEvents(w http.ResponseWriter, events []event.Event) {
	now := s.now()
	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, toDTO(ev, now))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// handleList returns all events or one view of them.
//
// GET /api/events?filter=all|today|week|upcoming&sort=date|none
// (defaults all, date; sort applies to all only)
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := store.ParseFilter(q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeEvents(w, s.events.Select(f, q.Get("sort") != "none"))
}

// handleUpcoming returns events in the next days (default from config).
//
// GET /api/events/upcoming?days=7
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	days := parseIntDefault(r.URL.Query().Get("days"), s.cfg.UpcomingDays)
	if days < 0 {
		writeError(w, http.StatusBadRequest, "days must not be negative")
		return
	}
	s.writeEvents(w, s.events.Upcoming(days))
}

func (s *Server) handleDue(w http.ResponseWriter, _ *http.Request) {
	s.writeEvents(w, s.events.DueForNotification())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.events.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, toDTO(ev, s.now()))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in event.Input
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, err := in.Build(s.now(), s.cfg.DefaultLeadMinutes)
	if err != nil {
		writeValidationError(w, err)
		return
	}
	added, err := s.events.Add(ev)
	if err != nil {
		writeValidationError(w, err)
		return
	}
	appLog.Info("api: event created", "id", added.ID, "title", added.Title)
	writeJSON(w, http.StatusCreated, toDTO(added, s.now()))
}

// updateRequest is the PUT body: a full event form plus whether to re-arm
// the reminder.
type updateRequest struct {
	event.Input
	ResetNotified bool `json:"reset_notified"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	current, ok := s.events.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in := req.Input
	in.Tags = nil
	ev, err := in.Build(s.now(), s.cfg.DefaultLeadMinutes)
	if err == nil {
		ev, err = ev.WithTags(req.Tags, current.Tags)
	}
	if err != nil {
		writeValidationError(w, err)
		return
	}
	ev.ID = id
	ev.Notified = current.Notified && !req.ResetNotified

	if err := s.events.Replace(id, ev); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeValidationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(ev, s.now()))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.events.Remove(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkNotified(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.events.MarkNotified(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ev, _ := s.events.Get(id)
	writeJSON(w, http.StatusOK, toDTO(ev, s.now()))
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if s.tester == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications are not configured")
		return
	}
	if err := s.tester.SendTestNotification(r.Context()); err != nil {
		appLog.Error("api: test notification failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, event.Tags)
}

// handleCalendar serves all events as an iCalendar feed, so calendar
// apps can subscribe to the planner.
func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="planer.ics"`)
	if err := ics.Export(w, s.events.List(true), s.now()); err != nil {
		appLog.Error("api: calendar export failed", err)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	return dec.Decode(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeValidationError maps event validation failures to 422 and anything
// else to 500.
func writeValidationError(w http.ResponseWriter, err error) {
	var ve *event.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusUnprocessableEntity, ve.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

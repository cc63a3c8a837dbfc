package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"concertcal/internal/backend"
	"concertcal/internal/calendar"
	"concertcal/internal/ics"
	appLog "concertcal/internal/log"
	"concertcal/internal/screen"
)

type calendarPage struct {
	View screen.View
}

type loginPage struct {
	Error string
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		appLog.Error("web: template execution failed", err, "template", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// handleCalendarPage renders the screen. It never moves the navigator;
// jumps go through POST /calendar/goto.
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	if s.opts.Screen.NeedsLogin() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	view, err := s.opts.Screen.View()
	if err != nil {
		appLog.Error("web: build view failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.render(w, http.StatusOK, "calendar.html", calendarPage{View: view})
}

// handleGoTo jumps to the year and 1-based month posted in the form.
func (s *Server) handleGoTo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	key, err := parseMonth(r.PostFormValue("year"), r.PostFormValue("month"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if key != s.opts.Screen.Current() {
		if _, err := s.opts.Screen.GoTo(key); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	appLog.Debug("web: jumped", "month", key.String())
	http.Redirect(w, r, "/calendar", http.StatusSeeOther)
}

func (s *Server) handleNavigatePage(step func() calendar.MonthKey) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := step()
		appLog.Debug("web: navigated", "month", key.String())
		http.Redirect(w, r, "/calendar", http.StatusSeeOther)
	}
}

func (s *Server) handleCalendarJSON(w http.ResponseWriter, _ *http.Request) {
	view, err := s.opts.Screen.View()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleNavigateJSON(step func() calendar.MonthKey) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step()
		s.handleCalendarJSON(w, r)
	}
}

// handleExport serves one month as ICS. The displayed slot is used when it
// holds that month; otherwise the month is fetched directly.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key, err := parseMonth(vars["year"], vars["month"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	concerts, ok := s.opts.Screen.Concerts(key)
	if !ok {
		if s.opts.Fetcher == nil {
			writeError(w, http.StatusNotFound, "month not loaded")
			return
		}
		concerts, err = s.opts.Fetcher.FetchConcerts(r.Context(), key.Year, key.APIMonth())
		if err != nil {
			appLog.Error("web: export fetch failed", err, "month", key.String())
			writeError(w, statusFor(err), "failed to fetch concerts")
			return
		}
	}

	body := ics.Export(key, concerts, time.Now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="concerts-%s.ics"`, key))
	_, _ = w.Write([]byte(body))
}

type followKind int

const (
	followArtist followKind = iota
	followConcert
)

type followRequest struct {
	Follow *bool `json:"follow"`
}

type followResponse struct {
	ID     int  `json:"id"`
	Follow bool `json:"follow"`
}

func (s *Server) handleFollow(kind followKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Follower == nil {
			writeError(w, http.StatusNotImplemented, "follow actions are not available")
			return
		}
		id, err := strconv.Atoi(mux.Vars(r)["id"])
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		var req followRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Follow == nil {
			writeError(w, http.StatusBadRequest, `body must be {"follow": true|false}`)
			return
		}

		switch kind {
		case followArtist:
			err = s.opts.Follower.FollowArtist(r.Context(), id, *req.Follow)
		case followConcert:
			err = s.opts.Follower.FollowConcert(r.Context(), id, *req.Follow)
		}
		if err != nil {
			appLog.Error("web: follow action failed", err, "id", id, "follow", *req.Follow)
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, followResponse{ID: id, Follow: *req.Follow})
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "login.html", loginPage{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "login.html", loginPage{Error: "invalid form"})
		return
	}
	token := strings.TrimSpace(r.PostFormValue("token"))
	if token == "" {
		s.render(w, http.StatusBadRequest, "login.html", loginPage{Error: "token is required"})
		return
	}
	if err := s.opts.Screen.Login(token); err != nil {
		appLog.Error("web: login failed", err)
		s.render(w, http.StatusInternalServerError, "login.html", loginPage{Error: "could not store token"})
		return
	}
	http.Redirect(w, r, "/calendar", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Screen.Logout(); err != nil {
		appLog.Error("web: logout failed", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// parseMonth parses a year and a 1-based month.
func parseMonth(year, month string) (calendar.MonthKey, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return calendar.MonthKey{}, fmt.Errorf("invalid year %q", year)
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return calendar.MonthKey{}, fmt.Errorf("invalid month %q", month)
	}
	return calendar.KeyFromAPIMonth(y, m)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, backend.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, calendar.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

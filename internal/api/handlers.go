package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/state"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if c := s.currentContract(); c != nil {
		body["contract"] = c.Address().Hex()
	} else {
		body["status"] = "degraded"
		body["contract"] = nil
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad request.")
		return
	}

	user, err := s.store.Authenticate(r.Context(), creds.Username, creds.Password)
	if errors.Is(err, state.ErrInvalidCredentials) {
		s.logger.Warn("invalid login attempt", "username", creds.Username)
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		s.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "An internal server error occurred.")
		return
	}

	sess, _ := s.sessionStore.Get(r, sessionName)
	sess.Values[sessionLoggedIn] = true
	sess.Values[sessionUserID] = user.ID
	sess.Values[sessionUser] = user.Username
	if err := sess.Save(r, w); err != nil {
		s.logger.Error("failed to save session", "error", err)
		writeError(w, http.StatusInternalServerError, "An internal server error occurred.")
		return
	}

	s.logger.Info("user logged in", "username", user.Username)
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Logged in", "user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.sessionStore.Get(r, sessionName)
	username, _ := sess.Values[sessionUser].(string)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		s.logger.Error("failed to clear session", "error", err)
	}
	s.logger.Info("user logged out", "username", username)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad request.")
		return
	}
	if creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing username or password")
		return
	}

	user, err := s.store.CreateUser(r.Context(), creds.Username, creds.Password)
	if errors.Is(err, state.ErrUserExists) {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}
	if err != nil {
		s.logger.Error("failed to save user", "error", err)
		writeError(w, http.StatusInternalServerError, "An internal server error occurred.")
		return
	}

	s.logger.Info("user registered", "username", user.Username, "by", currentUser(r.Context()))
	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": "User created successfully", "user": user})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "An internal server error occurred.")
		return
	}
	if users == nil {
		users = []state.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Bad request.")
		return
	}

	err = s.store.DeleteUser(r.Context(), id)
	if errors.Is(err, state.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to remove user", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "An internal server error occurred.")
		return
	}

	s.logger.Info("user removed", "id", id, "by", currentUser(r.Context()))
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "User removed", "id": id})
}

// contractOr503 returns the bound contract or answers 503.
func (s *Server) contractOr503(w http.ResponseWriter) Contract {
	c := s.currentContract()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "contract not deployed on the selected network")
	}
	return c
}

func (s *Server) handleCountRegistrations(w http.ResponseWriter, r *http.Request) {
	c := s.contractOr503(w)
	if c == nil {
		return
	}
	course := chi.URLParam(r, "course")
	n, err := c.CountRegistrations(r.Context(), course)
	if err != nil {
		s.logger.Error("countRegistrations failed", "course", course, "error", err)
		writeUpstreamError(w, err, "Error retrieving registrations from blockchain.")
		return
	}
	s.logger.Info("queried registrations", "course", course, "count", n)
	writeJSON(w, http.StatusOK, map[string]interface{}{"course_name": course, "registrations": n})
}

func (s *Server) handleCountAttendances(w http.ResponseWriter, r *http.Request) {
	c := s.contractOr503(w)
	if c == nil {
		return
	}
	course, lesson := chi.URLParam(r, "course"), chi.URLParam(r, "lesson")
	n, err := c.CountLessonAttendances(r.Context(), course, lesson)
	if err != nil {
		s.logger.Error("countLessonAttendances failed", "course", course, "lesson", lesson, "error", err)
		writeUpstreamError(w, err, "Error retrieving attendances from blockchain.")
		return
	}
	s.logger.Info("queried attendances", "course", course, "lesson", lesson, "count", n)
	writeJSON(w, http.StatusOK, map[string]interface{}{"course_name": course, "lesson_name": lesson, "attendances": n})
}

func (s *Server) handleCountExamParticipations(w http.ResponseWriter, r *http.Request) {
	c := s.contractOr503(w)
	if c == nil {
		return
	}
	course := chi.URLParam(r, "course")
	date, err := attendance.ExamDate(chi.URLParam(r, "day"), chi.URLParam(r, "month"), chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing date parts for exam.")
		return
	}
	n, err := c.CountExamParticipations(r.Context(), course, date)
	if err != nil {
		s.logger.Error("countExamParticipations failed", "course", course, "date", date, "error", err)
		writeUpstreamError(w, err, "Error retrieving exam participations from blockchain.")
		return
	}
	s.logger.Info("queried exam participations", "course", course, "date", date, "count", n)
	writeJSON(w, http.StatusOK, map[string]interface{}{"course_name": course, "exam_date": date, "participations": n})
}

// handleRecords serves both record routes: exams take the date as three
// path segments, other operations a single info segment.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	op, err := attendance.ParseOperation(chi.URLParam(r, "op"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	course := chi.URLParam(r, "course")

	var info string
	day, month, year := chi.URLParam(r, "day"), chi.URLParam(r, "month"), chi.URLParam(r, "year")
	isDateRoute := day != "" || month != "" || year != ""
	switch {
	case op == attendance.OpExam:
		if info, err = attendance.ExamDate(day, month, year); err != nil {
			s.logger.Error("missing date parts for exam", "course", course)
			writeError(w, http.StatusBadRequest, "Missing date parts for exam.")
			return
		}
	case isDateRoute:
		writeError(w, http.StatusBadRequest, "Date parts are only accepted for exams.")
		return
	default:
		info = chi.URLParam(r, "info")
	}

	c := s.contractOr503(w)
	if c == nil {
		return
	}

	records, err := c.RecordsByOperation(r.Context(), op, course, info)
	if err != nil {
		s.logger.Error("getRecordsByOperation failed", "operation", op, "course", course, "info", info, "error", err)
		writeUpstreamError(w, err, "Error retrieving records from blockchain.")
		return
	}
	s.logger.Info("retrieved records", "operation", op, "course", course, "info", info, "count", len(records))

	ck, err := s.store.GetKey(r.Context(), course, attendance.KeyLabel(op, info))
	if errors.Is(err, state.ErrKeyNotFound) {
		s.logger.Info("key and IV not found", "course", course, "label", attendance.KeyLabel(op, info))
		writeError(w, http.StatusInternalServerError, "key and IV not found")
		return
	}
	if err != nil {
		s.logger.Error("keychain lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "An internal server error occurred.")
		return
	}

	decrypted, err := attendance.DecryptRecords(records, attendance.Key{Key: ck.Key, IV: ck.IV})
	if err != nil {
		s.logger.Error("failed to decrypt record", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to decrypt or process record.")
		return
	}
	writeJSON(w, http.StatusOK, decrypted)
}

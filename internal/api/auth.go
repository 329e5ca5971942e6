package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/simon-b/atuin/internal/serverdb"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse carries the session key issued by register and login.
type SessionResponse struct {
	Session  string `json:"session"`
	Username string `json:"username"`
}

// handleRegister creates an account and issues a first session key.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.config.AllowSignup {
		writeError(w, http.StatusForbidden, ErrCodeSignupDisabled, "registration is disabled on this server")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	user, err := s.store.RegisterUser(req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, serverdb.ErrUserExists) {
			writeError(w, http.StatusConflict, ErrCodeUserExists, "username or email already registered")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	key, _, err := s.store.CreateSession(user.ID)
	if err != nil {
		logFor(r.Context()).Error("create session", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create session")
		return
	}

	logFor(r.Context()).Info("user registered", "uid", user.ID)
	writeJSON(w, http.StatusOK, SessionResponse{Session: key, Username: user.Username})
}

// handleLogin checks credentials and issues a new session key.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	user, err := s.store.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, serverdb.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid username or password")
			return
		}
		logFor(r.Context()).Error("authenticate", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to authenticate")
		return
	}

	key, _, err := s.store.CreateSession(user.ID)
	if err != nil {
		logFor(r.Context()).Error("create session", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{Session: key, Username: user.Username})
}

// handleLogout revokes the presented session key.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	if err := s.store.RevokeSession(user.SessionKey); err != nil {
		logFor(r.Context()).Error("revoke session", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to revoke session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeleteAccount removes the account, its sessions, and every stored
// history record.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	if err := s.history.DeleteAccountData(user.UserID); err != nil {
		logFor(r.Context()).Error("delete account data", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to delete account data")
		return
	}
	if err := s.store.RevokeUserSessions(user.UserID); err != nil {
		logFor(r.Context()).Error("revoke sessions", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to revoke sessions")
		return
	}
	if err := s.store.DeleteUser(user.UserID); err != nil {
		logFor(r.Context()).Error("delete user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to delete account")
		return
	}

	logFor(r.Context()).Info("account deleted", "uid", user.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

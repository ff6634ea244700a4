package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/reachpoint/reachpoint/internal/core/auth"
	"github.com/reachpoint/reachpoint/internal/types"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// register creates an API account and returns a session token.
func (s *Service) register(w http.ResponseWriter, r *http.Request) error {
	var req registerRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}

	user := types.User{
		ID:           types.NewUserID(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.Users().Create(r.Context(), user); err != nil {
		if errors.Is(err, types.ErrDuplicate) {
			return conflict("email already registered")
		}
		return err
	}

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		return err
	}

	s.log.Info().Str("user_id", string(user.ID)).Msg("account registered")
	return writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

// login verifies credentials and returns a session token.
func (s *Service) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		return err
	}

	user, err := s.store.Users().ByEmail(r.Context(), req.Email)
	if errors.Is(err, types.ErrNotFound) {
		return unauthorized("invalid credentials")
	}
	if err != nil {
		return err
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return unauthorized("invalid credentials")
	}

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: *user})
}

// currentUser returns the account behind the request token.
func (s *Service) currentUser(w http.ResponseWriter, r *http.Request) error {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return unauthorized("missing auth token")
	}

	user, err := s.store.Users().ByID(r.Context(), userID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, user)
}

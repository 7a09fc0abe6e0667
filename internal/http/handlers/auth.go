package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/altus4/core/internal/apperrors"
	"github.com/altus4/core/internal/auth"
	"github.com/altus4/core/internal/constants"
	"github.com/altus4/core/internal/crypto"
	"github.com/altus4/core/internal/http/mw"
	"github.com/altus4/core/internal/http/respond"
	"github.com/altus4/core/internal/idgen"
	"github.com/altus4/core/internal/models"
	"github.com/altus4/core/internal/repository"
)

// AuthHandler implements the account lifecycle endpoints (register, login,
// profile, password change, logout) behind bearer-token auth.
type AuthHandler struct {
	users         repository.UserRepository
	authenticator *auth.Authenticator
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(users repository.UserRepository, authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{users: users, authenticator: authenticator}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register creates a new user account and returns a bearer token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, apperrors.Validation("malformed request body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		respond.Error(w, r, apperrors.Validation("email and password are required"))
		return
	}

	if existing, _ := h.users.GetByEmail(r.Context(), req.Email); existing != nil {
		respond.Error(w, r, apperrors.Conflict("an account with that email already exists"))
		return
	}

	hash, err := crypto.HashPassword(req.Password, 0)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}

	user := &models.User{
		ID:           idgen.New(),
		Email:        req.Email,
		PasswordHash: hash,
		Tier:         constants.TierFree,
		Role:         models.RoleUser,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}

	token, err := h.authenticator.IssueToken(user)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusCreated, authResponse{Token: token, User: *user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and issues a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, apperrors.Validation("malformed request body"))
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil || user == nil || !crypto.VerifyPassword(req.Password, user.PasswordHash) {
		respond.Error(w, r, apperrors.Unauthorized("invalid email or password"))
		return
	}

	now := time.Now()
	_ = h.users.UpdateLastLogin(r.Context(), user.ID, now)

	token, err := h.authenticator.IssueToken(user)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, authResponse{Token: token, User: *user})
}

// Profile returns the authenticated user's account details.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		respond.Error(w, r, apperrors.NotFound("user"))
		return
	}
	respond.JSON(w, r, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword rotates the authenticated user's password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, apperrors.Validation("malformed request body"))
		return
	}

	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		respond.Error(w, r, apperrors.NotFound("user"))
		return
	}
	if !crypto.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		respond.Error(w, r, apperrors.Unauthorized("current password is incorrect"))
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword, 0)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now()
	if err := h.users.Update(r.Context(), user); err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]bool{"changed": true})
}

// Refresh reissues a bearer token for the authenticated user.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	user, err := h.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		respond.Error(w, r, apperrors.NotFound("user"))
		return
	}
	token, err := h.authenticator.IssueToken(user)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]string{"token": token})
}

// Logout is a no-op acknowledgement; tokens are stateless and expire on
// their own TTL.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, r, http.StatusOK, map[string]bool{"logged_out": true})
}

// DeleteAccount removes the authenticated user's account.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	if err := h.users.Delete(r.Context(), identity.UserID); err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

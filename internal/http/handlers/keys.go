package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/altus4/core/internal/apperrors"
	"github.com/altus4/core/internal/constants"
	"github.com/altus4/core/internal/crypto"
	"github.com/altus4/core/internal/http/mw"
	"github.com/altus4/core/internal/http/respond"
	"github.com/altus4/core/internal/idgen"
	"github.com/altus4/core/internal/models"
	"github.com/altus4/core/internal/repository"
)

// KeyHandler implements API key management endpoints (C9) behind
// bearer-token auth.
type KeyHandler struct {
	keys repository.APIKeyRepository
}

// NewKeyHandler builds a KeyHandler.
func NewKeyHandler(keys repository.APIKeyRepository) *KeyHandler {
	return &KeyHandler{keys: keys}
}

func (h *KeyHandler) ownedKey(r *http.Request) (*models.APIKey, error) {
	identity := mw.GetIdentity(r.Context())
	id := chi.URLParam(r, "id")
	key, err := h.keys.GetByID(r.Context(), id)
	if err != nil {
		return nil, apperrors.NotFound("API key")
	}
	if key.UserID != identity.UserID && !identity.IsAdmin() {
		return nil, apperrors.Forbidden("API key belongs to another account")
	}
	return key, nil
}

// List returns every API key belonging to the authenticated user.
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	keys, err := h.keys.GetByUserID(r.Context(), identity.UserID)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, keys)
}

type createKeyRequest struct {
	Name        string     `json:"name"`
	Environment string     `json:"environment"`
	Permissions []string   `json:"permissions,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// validPermissions filters raw to the closed {search, analytics, admin}
// set, defaulting to {search} when raw is empty or every entry is
// unrecognised.
func validPermissions(raw []string) []models.Permission {
	out := make([]models.Permission, 0, len(raw))
	for _, p := range raw {
		switch models.Permission(p) {
		case models.PermissionSearch, models.PermissionAnalytics, models.PermissionAdmin:
			out = append(out, models.Permission(p))
		}
	}
	if len(out) == 0 {
		return []models.Permission{models.PermissionSearch}
	}
	return out
}

type createKeyResponse struct {
	Key       models.APIKey `json:"key"`
	PlainText string        `json:"plain_text_key"`
}

// Create mints a new API key and returns its plaintext value once.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, apperrors.Validation("malformed request body"))
		return
	}
	if req.Name == "" {
		respond.Error(w, r, apperrors.Validation("name is required"))
		return
	}
	env := crypto.APIKeyEnvironment(req.Environment)
	if env != crypto.APIKeyEnvLive && env != crypto.APIKeyEnvTest {
		env = crypto.APIKeyEnvLive
	}

	generated, err := crypto.GenerateAPIKey(env)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}

	key := &models.APIKey{
		ID:          idgen.New(),
		UserID:      identity.UserID,
		Name:        req.Name,
		KeyPrefix:   generated.KeyPrefix,
		KeyHash:     generated.KeyHash,
		Environment: models.APIKeyEnvironment(env),
		Tier:        identity.Tier,
		Permissions: validPermissions(req.Permissions),
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   time.Now(),
	}
	if key.Tier == "" {
		key.Tier = constants.TierFree
	}

	if err := h.keys.Create(r.Context(), key); err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusCreated, createKeyResponse{Key: *key, PlainText: generated.PlaintextKey})
}

// Get returns one API key's metadata (never its secret).
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, err := h.ownedKey(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, key)
}

// Revoke disables an API key.
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	key, err := h.ownedKey(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := h.keys.Revoke(r.Context(), key.ID); err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]bool{"revoked": true})
}

// Regenerate revokes an existing key and mints a replacement with the
// same name, tier, and environment.
func (h *KeyHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	old, err := h.ownedKey(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := h.keys.Revoke(r.Context(), old.ID); err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}

	generated, err := crypto.GenerateAPIKey(crypto.APIKeyEnvironment(old.Environment))
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	key := &models.APIKey{
		ID:          idgen.New(),
		UserID:      old.UserID,
		Name:        old.Name,
		KeyPrefix:   generated.KeyPrefix,
		KeyHash:     generated.KeyHash,
		Environment: old.Environment,
		Tier:        old.Tier,
		Permissions: old.Permissions,
		ExpiresAt:   old.ExpiresAt,
		CreatedAt:   time.Now(),
	}
	if err := h.keys.Create(r.Context(), key); err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusCreated, createKeyResponse{Key: *key, PlainText: generated.PlaintextKey})
}

// Usage reports the key's last-used timestamp.
func (h *KeyHandler) Usage(w http.ResponseWriter, r *http.Request) {
	key, err := h.ownedKey(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]interface{}{
		"key_id":       key.ID,
		"last_used_at": key.LastUsedAt,
	})
}

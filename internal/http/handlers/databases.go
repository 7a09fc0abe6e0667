package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/altus4/core/internal/apperrors"
	"github.com/altus4/core/internal/http/mw"
	"github.com/altus4/core/internal/http/respond"
	"github.com/altus4/core/internal/idgen"
	"github.com/altus4/core/internal/models"
	"github.com/altus4/core/internal/registry"
	"github.com/altus4/core/internal/repository"
	"github.com/altus4/core/internal/schema"
)

// DatabaseHandler implements the registered-connection management
// endpoints (C2/C3/C4) behind bearer-token auth.
type DatabaseHandler struct {
	conns     repository.ConnectionRepository
	registry  *registry.Registry
	inspector *schema.Inspector
}

// NewDatabaseHandler builds a DatabaseHandler.
func NewDatabaseHandler(conns repository.ConnectionRepository, reg *registry.Registry, inspector *schema.Inspector) *DatabaseHandler {
	return &DatabaseHandler{conns: conns, registry: reg, inspector: inspector}
}

func (h *DatabaseHandler) ownedConnection(r *http.Request) (*models.DBConnection, error) {
	identity := mw.GetIdentity(r.Context())
	id := chi.URLParam(r, "id")
	conn, err := h.conns.GetByID(r.Context(), id)
	if err != nil {
		return nil, apperrors.NotFound("database connection")
	}
	if conn.UserID != identity.UserID && !identity.IsAdmin() {
		return nil, apperrors.Forbidden("connection belongs to another account")
	}
	return conn, nil
}

// List returns every connection registered by the authenticated user.
func (h *DatabaseHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	conns, err := h.conns.GetByUserID(r.Context(), identity.UserID)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, conns)
}

type createConnectionRequest struct {
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
}

// Create registers a new database connection and attempts an initial
// hydration test.
func (h *DatabaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, apperrors.Validation("malformed request body"))
		return
	}
	if req.Name == "" || req.Host == "" || req.Username == "" || req.DatabaseName == "" {
		respond.Error(w, r, apperrors.Validation("name, host, username, and database_name are required"))
		return
	}
	if req.Port == 0 {
		req.Port = 3306
	}

	conn := &models.DBConnection{
		ID:           idgen.New(),
		UserID:       identity.UserID,
		Name:         req.Name,
		Host:         req.Host,
		Port:         req.Port,
		Username:     req.Username,
		DatabaseName: req.DatabaseName,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := h.registry.AddConnection(r.Context(), conn, req.Password); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, conn)
}

// Get returns one registered connection.
func (h *DatabaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn, err := h.ownedConnection(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, conn)
}

type updateConnectionRequest struct {
	Name         string  `json:"name,omitempty"`
	Host         string  `json:"host,omitempty"`
	Port         int     `json:"port,omitempty"`
	Username     string  `json:"username,omitempty"`
	Password     *string `json:"password,omitempty"`
	DatabaseName string  `json:"database_name,omitempty"`
}

// Update edits a registered connection's metadata.
func (h *DatabaseHandler) Update(w http.ResponseWriter, r *http.Request) {
	conn, err := h.ownedConnection(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var req updateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, apperrors.Validation("malformed request body"))
		return
	}
	if req.Name != "" {
		conn.Name = req.Name
	}
	if req.Host != "" {
		conn.Host = req.Host
	}
	if req.Port != 0 {
		conn.Port = req.Port
	}
	if req.Username != "" {
		conn.Username = req.Username
	}
	if req.DatabaseName != "" {
		conn.DatabaseName = req.DatabaseName
	}
	conn.UpdatedAt = time.Now()

	if err := h.conns.Update(r.Context(), conn); err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, conn)
}

// Delete removes a registered connection and its live pool.
func (h *DatabaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conn, err := h.ownedConnection(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := h.registry.RemoveConnection(r.Context(), conn.ID); err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// Test verifies connectivity for a registered connection on demand.
func (h *DatabaseHandler) Test(w http.ResponseWriter, r *http.Request) {
	conn, err := h.ownedConnection(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := h.registry.TestConnection(r.Context(), conn.ID); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, map[string]bool{"connected": true})
}

// Schema returns the discovered, FULLTEXT-classified schema for a
// registered connection.
func (h *DatabaseHandler) Schema(w http.ResponseWriter, r *http.Request) {
	conn, err := h.ownedConnection(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	db, err := h.registry.GetConnection(r.Context(), conn.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	tables, err := h.inspector.Discover(r.Context(), db, conn.ID)
	if err != nil {
		respond.Error(w, r, apperrors.Internal(err))
		return
	}
	respond.JSON(w, r, http.StatusOK, tables)
}

// Status reports live pooling state for every connection owned by the
// authenticated user.
func (h *DatabaseHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	statuses, err := h.registry.GetConnectionStatuses(r.Context(), identity.UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, statuses)
}

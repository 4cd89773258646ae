// internal/api/users/handlers.go
package users

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetlr/meetlr/internal/api/apiutil"
	"github.com/meetlr/meetlr/internal/db/store"
)

var (
	queries  *store.Queries
	initOnce sync.Once
)

const userQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *store.Queries) {
	if q == nil {
		return
	}
	initOnce.Do(func() {
		queries = q
	})
}

type userRequest struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
}

// POST /api/v1/users
func HandleUserCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("User handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req userRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch {
	case strings.TrimSpace(req.Slug) == "":
		http.Error(w, "slug is required", http.StatusBadRequest)
		return
	case strings.TrimSpace(req.Name) == "":
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	case !strings.Contains(req.Email, "@"):
		http.Error(w, "email must be a valid email address", http.StatusBadRequest)
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil || strings.TrimSpace(req.Timezone) == "" {
		http.Error(w, "timezone must be a valid IANA zone", http.StatusUnprocessableEntity)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), userQueryTimeout)
	defer cancel()

	created, err := queries.CreateUser(ctx, store.CreateUserParams{
		Slug:     strings.TrimSpace(req.Slug),
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Timezone: req.Timezone,
	})
	if err != nil {
		logger.Error().Err(err).Str("slug", req.Slug).Msg("Failed to create user")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Int64("user_id", created.ID).Msg("Failed to write user response")
	}
}

// GET /api/v1/users/{slug}
func HandleUserGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("User handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	slug := strings.TrimSpace(r.PathValue("slug"))
	if slug == "" {
		http.Error(w, "Invalid user slug", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), userQueryTimeout)
	defer cancel()

	user, err := queries.GetUserBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		logger.Error().Err(err).Str("slug", slug).Msg("Failed to fetch user")
		http.Error(w, "Failed to fetch user", http.StatusInternalServerError)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, user); err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to write user response")
	}
}

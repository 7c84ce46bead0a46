package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cre8hub/backend/internal/logging"
	"github.com/cre8hub/backend/internal/models"
	"github.com/cre8hub/backend/internal/repositories"
)

const (
	maxNameLength       = 100
	maxPastOutputLength = 20000
)

// ProfileHandler serves the authenticated user's own account record.
type ProfileHandler struct {
	Users   ProfileStore
	NowFunc func() time.Time
}

// Me handles GET /api/users/me.
func (h ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	user, ok := h.load(w, r)
	if !ok {
		return
	}

	respondSuccess(r.Context(), w, http.StatusOK, map[string]any{"user": newProfileView(user)})
}

// UpdateProfile handles PUT and PATCH /api/users/profile. Omitted fields keep
// their stored values. Switching role clears the answers given for the old one.
func (h ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPatch {
		methodNotAllowed(w, "PUT, PATCH")
		return
	}

	ctx := r.Context()
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.FromContext(ctx).Warn("invalid profile payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	user, ok := h.load(w, r)
	if !ok {
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if utf8.RuneCountInString(name) > maxNameLength {
			respondError(ctx, w, http.StatusBadRequest, "Name must be at most 100 characters", "")
			return
		}
		user.Name = name
	}
	if req.UserRole != nil {
		role := strings.TrimSpace(*req.UserRole)
		if !models.ValidRole(role) {
			respondError(ctx, w, http.StatusBadRequest, "Invalid user role", "")
			return
		}
		if role != user.Role {
			user.Role = role
			user.RoleProfile = models.RoleProfile{}
		}
	}

	h.save(w, r, user, "Profile updated successfully")
}

// UpdateRoleProfile handles PUT /api/users/profile/role. The request names the
// role the answers belong to, which also becomes the user's role.
func (h ProfileHandler) UpdateRoleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}

	ctx := r.Context()
	var req roleProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.FromContext(ctx).Warn("invalid role profile payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	role := strings.TrimSpace(req.Role)
	profile, err := req.RoleProfile.ForRole(role)
	if err != nil {
		message := "Invalid role profile"
		if errors.Is(err, models.ErrInvalidRole) {
			message = "Invalid user role"
		}
		respondError(ctx, w, http.StatusBadRequest, message, err.Error())
		return
	}

	user, ok := h.load(w, r)
	if !ok {
		return
	}
	user.Role = role
	user.RoleProfile = profile

	h.save(w, r, user, "Role profile updated successfully")
}

// ManualPersona handles POST /api/youtube/manual-persona, storing a persona
// the user wrote instead of one extracted from their channel.
func (h ProfileHandler) ManualPersona(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	h.storePersona(w, r, models.PersonaSourceManual)
}

// UpdatePersona handles PUT /api/users/persona, replacing the stored persona
// with the user's edited version.
func (h ProfileHandler) UpdatePersona(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	h.storePersona(w, r, models.PersonaSourceEdited)
}

func (h ProfileHandler) storePersona(w http.ResponseWriter, r *http.Request, source string) {
	ctx := r.Context()
	var input models.ManualPersona
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logging.FromContext(ctx).Warn("invalid persona payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	persona, err := input.Normalize()
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "Persona description is required", "")
		return
	}

	user, ok := h.load(w, r)
	if !ok {
		return
	}
	persona.Source = source
	persona.UpdatedAt = h.now()
	user.Persona = &persona

	h.save(w, r, user, "Persona saved successfully")
}

// AddPastOutput handles POST /api/users/past-outputs.
func (h ProfileHandler) AddPastOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	var req pastOutputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.FromContext(ctx).Warn("invalid past output payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondError(ctx, w, http.StatusBadRequest, "Content is required", "")
		return
	}
	if utf8.RuneCountInString(content) > maxPastOutputLength {
		respondError(ctx, w, http.StatusBadRequest, "Content must be at most 20000 characters", "")
		return
	}

	user, ok := h.load(w, r)
	if !ok {
		return
	}
	user.PastOutputs = models.AppendPastOutput(user.PastOutputs, models.PastOutput{
		Content:   content,
		Kind:      strings.TrimSpace(req.Kind),
		CreatedAt: h.now(),
	})

	h.save(w, r, user, "Past output added successfully")
}

func (h ProfileHandler) load(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("user store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "Profile service unavailable", "")
		return models.User{}, false
	}

	user, err := h.Users.FindByID(ctx, logging.UserIDFromContext(ctx))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "User not found", "")
			return models.User{}, false
		}
		logger.Error("load user failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "Failed to load profile", "")
		return models.User{}, false
	}
	return user, true
}

func (h ProfileHandler) save(w http.ResponseWriter, r *http.Request, user models.User, message string) {
	ctx := r.Context()
	user.UpdatedAt = h.now()

	if err := h.Users.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "User not found", "")
			return
		}
		logging.FromContext(ctx).Error("update user failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "Failed to update profile", "")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"message": message,
		"user":    newProfileView(user),
	})
}

func (h ProfileHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type updateProfileRequest struct {
	Name     *string `json:"name"`
	UserRole *string `json:"userRole"`
}

type roleProfileRequest struct {
	Role string `json:"role"`
	models.RoleProfile
}

type pastOutputRequest struct {
	Content string `json:"content"`
	Kind    string `json:"kind"`
}

// profileView is the account as shown to its owner. Credentials stay out.
type profileView struct {
	ID          string                `json:"id"`
	Email       string                `json:"email"`
	Name        string                `json:"name"`
	UserRole    string                `json:"userRole,omitempty"`
	RoleProfile models.RoleProfile    `json:"roleProfile"`
	Persona     *models.ManualPersona `json:"persona"`
	PastOutputs []models.PastOutput   `json:"pastOutputs"`
	YouTube     youTubeView           `json:"youtube"`
	Extraction  extractionView        `json:"extraction"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

type youTubeView struct {
	IsConnected bool       `json:"isConnected"`
	ConnectedAt *time.Time `json:"connectedAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

type extractionView struct {
	VideosProcessed int        `json:"videosProcessed"`
	LastExtraction  *time.Time `json:"lastExtraction"`
	Method          string     `json:"method,omitempty"`
}

func newProfileView(user models.User) profileView {
	outputs := user.PastOutputs
	if outputs == nil {
		outputs = []models.PastOutput{}
	}
	return profileView{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		UserRole:    user.Role,
		RoleProfile: user.RoleProfile,
		Persona:     user.Persona,
		PastOutputs: outputs,
		YouTube: youTubeView{
			IsConnected: user.YouTube.IsConnected,
			ConnectedAt: user.YouTube.ConnectedAt,
			ExpiresAt:   user.YouTube.ExpiresAt,
		},
		Extraction: extractionView{
			VideosProcessed: user.Extraction.VideosProcessed,
			LastExtraction:  user.Extraction.LastExtraction,
			Method:          user.Extraction.Method,
		},
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

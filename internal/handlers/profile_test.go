package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cre8hub/backend/internal/models"
	"github.com/cre8hub/backend/internal/repositories"
)

type stubProfiles struct {
	users     map[string]models.User
	updates   int
	updateErr error
}

func newStubProfiles(users ...models.User) *stubProfiles {
	s := &stubProfiles{users: make(map[string]models.User)}
	for _, user := range users {
		s.users[user.ID] = user
	}
	return s
}

func (s *stubProfiles) FindByID(_ context.Context, userID string) (models.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *stubProfiles) Update(_ context.Context, user models.User) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	s.updates++
	s.users[user.ID] = user
	return nil
}

var profileNow = time.Date(2024, time.June, 3, 9, 30, 0, 0, time.UTC)

func newProfileHandler(users ...models.User) (ProfileHandler, *stubProfiles) {
	store := newStubProfiles(users...)
	return ProfileHandler{Users: store, NowFunc: func() time.Time { return profileNow }}, store
}

func TestProfileHandlerMe(t *testing.T) {
	connectedAt := profileNow.Add(-time.Hour)
	handler, _ := newProfileHandler(models.User{
		ID:       "user-1",
		Email:    "creator@example.com",
		Name:     "Casey",
		Password: "hash",
		Role:     models.RoleContentCreator,
		YouTube: models.YouTubeTokens{
			AccessToken:  "ya29.secret",
			RefreshToken: "1//refresh",
			IsConnected:  true,
			ConnectedAt:  &connectedAt,
		},
	})

	rec := httptest.NewRecorder()
	handler.Me(rec, authedRequest(http.MethodGet, "/api/users/me", "user-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	raw := rec.Body.String()
	for _, secret := range []string{"ya29.secret", "1//refresh", "hash"} {
		if strings.Contains(raw, secret) {
			t.Fatalf("response leaked %q: %s", secret, raw)
		}
	}
}

func TestProfileHandlerMeShape(t *testing.T) {
	handler, _ := newProfileHandler(models.User{ID: "user-1", Email: "creator@example.com", Name: "Casey", Role: models.RoleEntrepreneur})

	rec := httptest.NewRecorder()
	handler.Me(rec, authedRequest(http.MethodGet, "/api/users/me", "user-1"))

	body := decodeBody(t, rec)
	user, ok := body["user"].(map[string]any)
	if !ok || body["success"] != true {
		t.Fatalf("unexpected body %v", body)
	}
	if user["email"] != "creator@example.com" || user["name"] != "Casey" || user["userRole"] != models.RoleEntrepreneur {
		t.Fatalf("unexpected user %v", user)
	}
	if outputs, ok := user["pastOutputs"].([]any); !ok || len(outputs) != 0 {
		t.Fatalf("expected empty past outputs list, got %v", user["pastOutputs"])
	}
	if user["persona"] != nil {
		t.Fatalf("expected null persona, got %v", user["persona"])
	}
}

func TestProfileHandlerMeUnknownUser(t *testing.T) {
	handler, _ := newProfileHandler()

	rec := httptest.NewRecorder()
	handler.Me(rec, authedRequest(http.MethodGet, "/api/users/me", "ghost"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestProfileHandlerUpdateProfile(t *testing.T) {
	handler, store := newProfileHandler(models.User{
		ID:          "user-1",
		Email:       "creator@example.com",
		Name:        "Old",
		Role:        models.RoleContentCreator,
		RoleProfile: models.RoleProfile{ContentGenre: "music"},
	})

	rec := httptest.NewRecorder()
	handler.UpdateProfile(rec, authedBodyRequest(http.MethodPatch, "/api/users/profile", "user-1", `{"name":"  Casey  "}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	stored := store.users["user-1"]
	if stored.Name != "Casey" || stored.Role != models.RoleContentCreator || stored.RoleProfile.ContentGenre != "music" {
		t.Fatalf("expected name change only, got %+v", stored)
	}
	if !stored.UpdatedAt.Equal(profileNow) {
		t.Fatalf("expected updated timestamp, got %s", stored.UpdatedAt)
	}

	rec = httptest.NewRecorder()
	handler.UpdateProfile(rec, authedBodyRequest(http.MethodPut, "/api/users/profile", "user-1", `{"userRole":"entrepreneur"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	stored = store.users["user-1"]
	if stored.Role != models.RoleEntrepreneur || stored.RoleProfile != (models.RoleProfile{}) || stored.Name != "Casey" {
		t.Fatalf("expected role switch to clear old answers, got %+v", stored)
	}
}

func TestProfileHandlerUpdateProfileValidation(t *testing.T) {
	handler, store := newProfileHandler(models.User{ID: "user-1", Email: "creator@example.com"})

	cases := []struct {
		name, body, message string
	}{
		{"bad role", `{"userRole":"admin"}`, "Invalid user role"},
		{"long name", `{"name":"` + strings.Repeat("é", maxNameLength+1) + `"}`, "Name must be at most 100 characters"},
		{"malformed", `{"name":`, "Invalid request body"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handler.UpdateProfile(rec, authedBodyRequest(http.MethodPatch, "/api/users/profile", "user-1", tc.body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", tc.name, rec.Code)
		}
		if body := decodeBody(t, rec); body["message"] != tc.message {
			t.Fatalf("%s: unexpected message %v", tc.name, body["message"])
		}
	}
	if store.updates != 0 {
		t.Fatalf("expected no writes for invalid input, got %d", store.updates)
	}

	rec := httptest.NewRecorder()
	handler.UpdateProfile(rec, authedBodyRequest(http.MethodPost, "/api/users/profile", "user-1", `{}`))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "PUT, PATCH" {
		t.Fatalf("expected 405 with Allow header, got %d %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestProfileHandlerUpdateRoleProfile(t *testing.T) {
	handler, store := newProfileHandler(models.User{ID: "user-1", Email: "creator@example.com", Role: models.RoleContentCreator})

	rec := httptest.NewRecorder()
	body := `{"role":"social-media-manager","clientType":"corporate","businessSize":"medium","socialMediaNiche":"analytics","contentGenre":"gaming"}`
	handler.UpdateRoleProfile(rec, authedBodyRequest(http.MethodPut, "/api/users/profile/role", "user-1", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	stored := store.users["user-1"]
	want := models.RoleProfile{ClientType: "corporate", BusinessSize: "medium", SocialMediaNiche: "analytics"}
	if stored.Role != models.RoleSocialMediaManager || stored.RoleProfile != want {
		t.Fatalf("unexpected stored profile %+v", stored)
	}

	rec = httptest.NewRecorder()
	handler.UpdateRoleProfile(rec, authedBodyRequest(http.MethodPut, "/api/users/profile/role", "user-1", `{"role":"entrepreneur","businessCategory":"saas"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing description, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["message"]; got != "Invalid role profile" {
		t.Fatalf("unexpected message %v", got)
	}

	rec = httptest.NewRecorder()
	handler.UpdateRoleProfile(rec, authedBodyRequest(http.MethodPut, "/api/users/profile/role", "user-1", `{"role":"streamer"}`))
	if got := decodeBody(t, rec)["message"]; rec.Code != http.StatusBadRequest || got != "Invalid user role" {
		t.Fatalf("expected invalid role rejection, got %d %v", rec.Code, got)
	}
	if store.users["user-1"].RoleProfile != want {
		t.Fatal("rejected requests must not change the stored profile")
	}
}

func TestProfileHandlerManualPersona(t *testing.T) {
	handler, store := newProfileHandler(models.User{ID: "user-1", Email: "creator@example.com"})

	rec := httptest.NewRecorder()
	body := `{"description":" calm woodworking teacher ","tone":"patient","topics":["joinery"," ","finishing"],"source":"forged"}`
	handler.ManualPersona(rec, authedBodyRequest(http.MethodPost, "/api/youtube/manual-persona", "user-1", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	persona := store.users["user-1"].Persona
	if persona == nil || persona.Description != "calm woodworking teacher" || len(persona.Topics) != 2 {
		t.Fatalf("unexpected stored persona %+v", persona)
	}
	if persona.Source != models.PersonaSourceManual || !persona.UpdatedAt.Equal(profileNow) {
		t.Fatalf("expected server-assigned source and timestamp, got %+v", persona)
	}

	rec = httptest.NewRecorder()
	handler.UpdatePersona(rec, authedBodyRequest(http.MethodPut, "/api/users/persona", "user-1", `{"description":"sharper edit"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if persona := store.users["user-1"].Persona; persona.Description != "sharper edit" || persona.Source != models.PersonaSourceEdited {
		t.Fatalf("unexpected edited persona %+v", persona)
	}

	rec = httptest.NewRecorder()
	handler.ManualPersona(rec, authedBodyRequest(http.MethodPost, "/api/youtube/manual-persona", "user-1", `{"tone":"dry"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without description, got %d", rec.Code)
	}
	if store.users["user-1"].Persona.Description != "sharper edit" {
		t.Fatal("rejected persona must not replace the stored one")
	}
}

func TestProfileHandlerAddPastOutput(t *testing.T) {
	handler, store := newProfileHandler(models.User{ID: "user-1", Email: "creator@example.com"})

	rec := httptest.NewRecorder()
	handler.AddPastOutput(rec, authedBodyRequest(http.MethodPost, "/api/users/past-outputs", "user-1", `{"content":" Episode 12 script ","kind":"script"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	outputs := store.users["user-1"].PastOutputs
	if len(outputs) != 1 || outputs[0].Content != "Episode 12 script" || outputs[0].Kind != "script" || !outputs[0].CreatedAt.Equal(profileNow) {
		t.Fatalf("unexpected past outputs %+v", outputs)
	}

	for _, body := range []string{`{"content":"   "}`, `{"content":"` + strings.Repeat("a", maxPastOutputLength+1) + `"}`} {
		rec = httptest.NewRecorder()
		handler.AddPastOutput(rec, authedBodyRequest(http.MethodPost, "/api/users/past-outputs", "user-1", body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	}
	if len(store.users["user-1"].PastOutputs) != 1 {
		t.Fatal("rejected outputs must not be stored")
	}
}

func TestProfileHandlerStoreFailures(t *testing.T) {
	handler, store := newProfileHandler(models.User{ID: "user-1", Email: "creator@example.com"})
	store.updateErr = errors.New("connection reset")

	rec := httptest.NewRecorder()
	handler.UpdateProfile(rec, authedBodyRequest(http.MethodPatch, "/api/users/profile", "user-1", `{"name":"Casey"}`))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ProfileHandler{}.Me(rec, authedRequest(http.MethodGet, "/api/users/me", "user-1"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without a store, got %d", rec.Code)
	}
}

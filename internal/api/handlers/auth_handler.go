package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/memora/internal/core"
	"github.com/markdave123-py/memora/internal/models"
)

// AuthHandler provisions users over HTTP. Signup issues the long-lived
// access credential assistants use; login additionally mints a short-lived
// session token for the dashboard.
type AuthHandler struct {
	store         core.ContextStore
	jwtSecret     string
	defaultTenant string
	log           *zap.Logger
}

func NewAuthHandler(store core.ContextStore, jwtSecret, defaultTenant string, log *zap.Logger) *AuthHandler {
	return &AuthHandler{store: store, jwtSecret: jwtSecret, defaultTenant: defaultTenant, log: log}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id,omitempty"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	tenant := req.TenantID
	if tenant == "" {
		tenant = h.defaultTenant
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.store.CreateOrGetUser(r.Context(), tenant, req.Email, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, exists := user.Settings["password_hash"]; exists {
		http.Error(w, "user exists", http.StatusConflict)
		return
	}

	settings := user.Settings
	if settings == nil {
		settings = models.JSONDoc{}
	}
	settings["password_hash"] = string(hash)
	if err := h.store.UpdateUserSettings(r.Context(), user.ID, user.TenantID, settings); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"token":   h.sessionToken(user),
		"api_key": user.APIKey,
		"user_id": user.ID,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	tenant := req.TenantID
	if tenant == "" {
		tenant = h.defaultTenant
	}

	user, err := h.store.GetUserByExternalID(r.Context(), tenant, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	if user == nil || !passwordMatches(user, req.Password) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := h.store.TouchLastActive(r.Context(), user.ID); err != nil {
		h.log.Warn("could not touch last_active", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":   h.sessionToken(user),
		"api_key": user.APIKey,
		"user_id": user.ID,
	})
}

func passwordMatches(user *models.User, password string) bool {
	hash, ok := user.Settings["password_hash"].(string)
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// sessionToken creates a signed token with user and tenant claims.
func (h *AuthHandler) sessionToken(user *models.User) string {
	claims := jwt.MapClaims{
		"user_id":   user.ID,
		"tenant_id": user.TenantID,
		"exp":       time.Now().Add(24 * time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte(h.jwtSecret))
	if err != nil {
		h.log.Error("could not sign session token", zap.Error(err))
		return ""
	}
	return token
}

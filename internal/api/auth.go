package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/leenbank/leenbank/internal/auth"
	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB     *sql.DB
	Issuer *auth.Issuer
	Emails *model.EmailPolicy
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type authResponse struct {
	Token    string `json:"token"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := store.GetUserByUsername(r.Context(), h.DB, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		slog.Warn("login failed", "username", store.NormalizeUsername(req.Username), "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
	slog.Info("user logged in", "user", user.Username, "role", user.Role)
}

// Register handles POST /api/auth/register. Only students can sign up.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if store.NormalizeUsername(req.Username) == "" {
		writeError(w, r, model.Invalid("username", "required"))
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Emails.Validate(model.RoleStudent, req.Email); err != nil {
		writeError(w, r, err)
		return
	}

	user, ok := createUser(w, r, h.DB, req.Username, req.Password, model.RoleStudent, req.Email)
	if !ok {
		return
	}

	slog.Info("student registered", "user", user.Username)
	h.respondWithToken(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user *model.User) {
	token, _, err := h.Issuer.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, status, authResponse{Token: token, Role: user.Role, Username: user.Username})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		// The account was deleted while the token was still valid.
		jsonError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Logout handles POST /api/auth/logout. The token stays revoked until it
// would have expired anyway.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, claims.ExpiresAt.Time); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged out", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		jsonError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		jsonError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, claims.UserID, hash); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user changed own password", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// createUser hashes the password and stores the account, answering 409 when
// the username or email is taken. It reports whether a user was created.
func createUser(w http.ResponseWriter, r *http.Request, db *sql.DB, username, password, role, email string) (*model.User, bool) {
	ctx := r.Context()

	existing, err := store.GetUserByUsername(ctx, db, username)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if existing != nil {
		jsonError(w, http.StatusConflict, "username already taken")
		return nil, false
	}

	if email != "" {
		existing, err = store.GetUserByEmail(ctx, db, email)
		if err != nil {
			writeError(w, r, err)
			return nil, false
		}
		if existing != nil {
			jsonError(w, http.StatusConflict, "email already registered")
			return nil, false
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}

	user, err := store.CreateUser(ctx, db, username, hash, role, email)
	if err != nil {
		// Lost a race with a concurrent sign-up for the same name or email.
		slog.Warn("creating user failed", "username", username, "error", err)
		jsonError(w, http.StatusConflict, "username or email already in use")
		return nil, false
	}
	return user, true
}

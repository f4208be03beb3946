package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const defaultRole = "operator"

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the successful login response
type LoginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Rol       string    `json:"rol"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HashPassword returns the bcrypt hash to put in an operator account.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// LoginHandler exchanges operator credentials for a token.
func (m *Manager) LoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error":"username and password are required"}`, http.StatusBadRequest)
		return
	}

	account, ok := m.users[strings.ToLower(req.Username)]
	if !ok || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		m.log.WithField("username", req.Username).Warn("login rejected")
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	role := account.Role
	if role == "" {
		role = defaultRole
	}
	token, err := m.GenerateToken(account.Username, role)
	if err != nil {
		m.log.WithError(err).Error("failed to generate token")
		http.Error(w, `{"error":"failed to generate token"}`, http.StatusInternalServerError)
		return
	}

	m.log.WithField("username", account.Username).Info("operator logged in")
	json.NewEncoder(w).Encode(LoginResponse{
		Token:     token,
		UserID:    account.Username,
		Rol:       role,
		ExpiresAt: time.Now().Add(m.ttl),
	})
}

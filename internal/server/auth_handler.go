package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/config"
)

// TokenRequest is the body of POST /auth/token
type TokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse carries an issued operator token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Operator is the single account allowed to drive the API
type Operator struct {
	Username     string
	PasswordHash string
}

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	operator   Operator
	passwords  *config.PasswordConfig
	jwtService *JWTService
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(operator Operator, passwords *config.PasswordConfig, jwtService *JWTService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		operator:   operator,
		passwords:  passwords,
		jwtService: jwtService,
		validator:  validator.New(),
		logger:     logger,
	}
}

// Token exchanges operator credentials for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	if err := h.authenticate(req); err != nil {
		h.logger.Warn().Str("username", req.Username).Msg("operator login rejected")
		writeError(w, HTTPStatus(err), err.Error())
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(h.operator.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *AuthHandler) authenticate(req TokenRequest) error {
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.operator.Username)) == 1
	// always run bcrypt so a bad username costs the same as a bad password
	passOK := h.passwords.VerifyPassword(req.Password, h.operator.PasswordHash)
	if !userOK || !passOK {
		return &ErrInvalidCredentials{}
	}
	return nil
}

// extractValidationErrors extracts validation error messages from validator errors.
func extractValidationErrors(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrors) > 0 {
			// Return first validation error for simplicity
			ve := validationErrors[0]
			return fmt.Sprintf("validation error: %s - %s", ve.Field(), ve.Tag())
		}
	}
	return "validation error: invalid request"
}

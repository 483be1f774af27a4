package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jjudge-oj/accounts/internal/identity"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/types"
	"go.uber.org/zap"
)

const (
	msgUserExists         = "User already exists."
	msgInvalidCredentials = "Invalid email or password."
	msgGoogleAuthFailed   = "Google authentication failed"
	msgUserNotFound       = "User not found"
	msgInvalidRequest     = "invalid request"
	msgInvalidAccount     = "invalid account fields"
	msgInternal           = "internal server error"
)

// AccountHandler provides signup, login and profile endpoints.
type AccountHandler struct {
	accounts *services.AccountService
	logger   *zap.Logger
}

// NewAccountHandler constructs an AccountHandler with the provided dependencies.
func NewAccountHandler(accounts *services.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// AuthRouter registers signup and login routes on the given router.
func AuthRouter(r chi.Router, accounts *services.AccountService, logger *zap.Logger) {
	handler := NewAccountHandler(accounts, logger)

	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.Post("/google", handler.GoogleLogin)
}

// ProfileRouter registers the authenticated profile routes on the given router.
func ProfileRouter(r chi.Router, accounts *services.AccountService, logger *zap.Logger, authMiddleware func(http.Handler) http.Handler) {
	handler := NewAccountHandler(accounts, logger)

	r.With(authMiddleware).Get("/profile", handler.GetProfile)
	r.With(authMiddleware).Put("/profile", handler.UpdateProfile)
}

type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type GoogleLoginRequest struct {
	Token string `json:"token"`
}

// UpdateProfileRequest carries the full set of mutable profile fields.
// Omitted fields are cleared.
type UpdateProfileRequest struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Gender   string `json:"gender"`
	DOB      string `json:"dob"`
}

type AccountResponse struct {
	Message string              `json:"message,omitempty"`
	User    types.PublicAccount `json:"user"`
}

type SessionResponse struct {
	Message string              `json:"message"`
	Token   string              `json:"token"`
	User    types.PublicAccount `json:"user"`
}

// Signup creates a password account.
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	account, err := h.accounts.Signup(r.Context(), services.SignupInput{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailExists):
			writeError(w, http.StatusBadRequest, msgUserExists)
		case errors.Is(err, services.ErrInvalidAccount):
			h.writeValidationError(w, err)
		default:
			h.internalError(w, r, "signup", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, AccountResponse{
		Message: "User created successfully.",
		User:    account.Public(),
	})
}

// Login verifies an email and password and returns a session token.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, msgInvalidCredentials)
			return
		}
		h.internalError(w, r, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Message: "Login successful",
		Token:   session.Token,
		User:    session.Account.Public(),
	})
}

// GoogleLogin exchanges a Google ID token for a session token.
func (h *AccountHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	session, err := h.accounts.FederatedLogin(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidAssertion) {
			h.logger.Info("google assertion rejected",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err))
			writeError(w, http.StatusUnauthorized, msgGoogleAuthFailed)
			return
		}
		h.logger.Error("google login failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgGoogleAuthFailed)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Message: "Login successful",
		Token:   session.Token,
		User:    session.Account.Public(),
	})
}

// GetProfile returns the authenticated account.
func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.accounts.GetProfile(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, msgUserNotFound)
			return
		}
		h.internalError(w, r, "get profile", err)
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{User: account.Public()})
}

// UpdateProfile overwrites the authenticated account's mutable fields.
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	dob, err := parseDate(req.DOB)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Message: msgInvalidAccount,
			Fields:  []types.FieldError{{Field: "dob", Reason: "must be a date (YYYY-MM-DD)"}},
		})
		return
	}

	account, err := h.accounts.UpdateProfile(r.Context(), accountID, types.ProfileUpdate{
		FullName:    req.FullName,
		Phone:       req.Phone,
		Address:     req.Address,
		Gender:      types.Gender(req.Gender),
		DateOfBirth: dob,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAccount):
			h.writeValidationError(w, err)
		case errors.Is(err, services.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, msgUserNotFound)
		default:
			h.internalError(w, r, "update profile", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{
		Message: "Profile updated successfully",
		User:    account.Public(),
	})
}

func (h *AccountHandler) writeValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Message: msgInvalidAccount}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func (h *AccountHandler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, msgInternal)
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty value means no date.
func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

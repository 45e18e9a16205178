package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tenantcart/apiserver/config"
	"github.com/tenantcart/apiserver/internal/services"
	"github.com/tenantcart/apiserver/types"
)

const defaultTokenTTL = 24 * time.Hour

type contextKey string

const contextClaimsKey contextKey = "claims"

// Claims are the JWT claims issued at login.
type Claims struct {
	TenantID string `json:"tenantID"`
	UserID   string `json:"userID"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues login tokens and, when enforcement is on, checks them
// on tenant and order routes.
type Authenticator struct {
	secret   []byte
	tokenTTL time.Duration
	required bool
}

// NewAuthenticator constructs an Authenticator from config.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: ttl,
		required: cfg.Required,
	}
}

// RequireAuth rejects requests without a valid bearer token and injects the
// claims into the request context. It is a no-op when enforcement is off.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	if !a.required {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := a.parseToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTenantAdmin only lets an admin of the {tenantID} route parameter through.
func (a *Authenticator) RequireTenantAdmin(next http.Handler) http.Handler {
	return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.allowTenantAdmin(r, chi.URLParam(r, "tenantID")) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (a *Authenticator) allowTenantAdmin(r *http.Request, tenantID string) bool {
	if !a.required {
		return true
	}
	claims, ok := claimsFromContext(r.Context())
	return ok && claims.TenantID == strings.TrimSpace(tenantID) && claims.Role == types.RoleAdmin
}

func (a *Authenticator) allowAccount(r *http.Request, tenantID, userID string) bool {
	if !a.required {
		return true
	}
	claims, ok := claimsFromContext(r.Context())
	return ok && claims.TenantID == strings.TrimSpace(tenantID) && claims.UserID == strings.TrimSpace(userID)
}

// IssueToken signs a token for account.
func (a *Authenticator) IssueToken(account types.Account) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		TenantID: account.TenantID,
		UserID:   account.UserID,
		Role:     account.Data.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.TenantID + "/" + account.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TenantID == "" || claims.UserID == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}

func claimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// AuthHandler provides signup and login endpoints.
type AuthHandler struct {
	accounts *services.AccountService
	auth     *Authenticator
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts *services.AccountService, auth *Authenticator) *AuthHandler {
	return &AuthHandler{accounts: accounts, auth: auth}
}

type SignupRequest struct {
	TenantID string         `json:"tenantID"`
	UserID   string         `json:"userID"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

type LoginRequest struct {
	TenantID string `json:"tenantID"`
	UserID   string `json:"userID"`
	Password string `json:"password"`
}

// UserView is the public part of an account returned at login.
type UserView struct {
	TenantID string            `json:"tenantID"`
	UserID   string            `json:"userID"`
	Data     types.AccountData `json:"data"`
}

type LoginResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	User    UserView `json:"user"`
	Token   string   `json:"token"`
}

// Signup creates a tenant admin or user account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateIdentity(req.TenantID, req.UserID, req.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if utf8.RuneCountInString(req.Password) < 3 {
		writeError(w, http.StatusBadRequest, "password must be at least 3 characters long")
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), services.CreateAccountInput{
		TenantID: req.TenantID,
		UserID:   req.UserID,
		Password: req.Password,
		Data:     req.Data,
	})
	if err != nil {
		writeServiceError(w, r, "create account", err)
		return
	}

	log.Printf("account created tenant=%s user=%s role=%s", account.TenantID, account.UserID, account.Data.Role)
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: services.AccountCreatedMessage(account)})
}

// Login verifies credentials and returns the account with a signed token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := validateIdentity(req.TenantID, req.UserID, req.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	account, err := h.accounts.VerifyCredentials(r.Context(), req.TenantID, req.UserID, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) || errors.Is(err, services.ErrInvalidPassword) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeServiceError(w, r, "verify credentials", err)
		return
	}

	token, err := h.auth.IssueToken(account)
	if err != nil {
		writeServiceError(w, r, "issue token", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Message: "Login successful",
		User: UserView{
			TenantID: account.TenantID,
			UserID:   account.UserID,
			Data:     account.Data,
		},
		Token: token,
	})
}

// validateIdentity returns a client message for missing or blank identity
// fields, or "" when they are usable.
func validateIdentity(tenantID, userID, password string) string {
	if tenantID == "" || userID == "" || password == "" {
		return "Missing required fields: tenantID, userID, and password are required"
	}
	if strings.TrimSpace(tenantID) == "" {
		return "tenantID must be a non-empty string"
	}
	if strings.TrimSpace(userID) == "" {
		return "userID must be a non-empty string"
	}
	return ""
}

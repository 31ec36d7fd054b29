package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"graphiste/internal/models"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const userKey contextKey = "user"

// CodeAuthRequired is the error code sent with every 401.
const CodeAuthRequired = "AUTHENTICATION_REQUIRED"

// User is the authenticated caller, resolved from a Supabase access token
// and enriched with the roles and permissions stored locally.
type User struct {
	ID          uuid.UUID
	Email       string
	FullName    *string
	Roles       []models.Role
	Permissions map[models.Permission]bool
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role models.Role) bool {
	return slices.Contains(u.Roles, role)
}

// Can reports whether the user may exercise perm. Admins can do anything.
func (u *User) Can(perm models.Permission) bool {
	return u.HasRole(models.RoleAdmin) || u.Permissions[perm]
}

// UserLoader is the part of the store the authenticator needs.
type UserLoader interface {
	EnsureProfile(ctx context.Context, id uuid.UUID, email string, fullName *string) (*models.Profile, error)
	Roles(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
	Permissions(ctx context.Context, roles []models.Role) (map[models.Permission]bool, error)
}

// AuthConfig configures token verification. JWTSecret enables local HS256
// verification; SupabaseURL and AnonKey enable the /auth/v1/user fallback.
type AuthConfig struct {
	JWTSecret   string
	SupabaseURL string
	AnonKey     string
}

// Authenticator verifies Supabase bearer tokens.
type Authenticator struct {
	cfg    AuthConfig
	users  UserLoader
	client *http.Client
}

// NewAuthenticator creates an Authenticator backed by users.
func NewAuthenticator(cfg AuthConfig, users UserLoader) *Authenticator {
	return &Authenticator{
		cfg:    cfg,
		users:  users,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// identity is what a valid token tells us about the caller.
type identity struct {
	ID       uuid.UUID
	Email    string
	FullName *string
}

type supabaseClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

var errNoVerifier = errors.New("no token verifier configured")

// Authenticate resolves the bearer token, if any, into a User stored in
// the request context. Requests without an Authorization header pass
// through untouched; a header carrying an invalid token is rejected.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "En-tête Authorization invalide", CodeAuthRequired)
			return
		}

		id, err := a.verify(r.Context(), strings.TrimSpace(token))
		if err != nil {
			slog.Debug("token rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "Session invalide ou expirée", CodeAuthRequired)
			return
		}

		user, err := a.load(r.Context(), id)
		if err != nil {
			slog.Error("load authenticated user", "user_id", id.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Erreur interne du serveur", "")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (a *Authenticator) verify(ctx context.Context, token string) (*identity, error) {
	if a.cfg.JWTSecret != "" {
		id, err := a.verifyLocal(token)
		if err == nil {
			return id, nil
		}
		// An expired token will not be accepted remotely either.
		if errors.Is(err, jwt.ErrTokenExpired) || a.cfg.SupabaseURL == "" {
			return nil, err
		}
	}
	if a.cfg.SupabaseURL == "" {
		return nil, errNoVerifier
	}
	return a.verifyRemote(ctx, token)
}

func (a *Authenticator) verifyLocal(token string) (*identity, error) {
	var claims supabaseClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(a.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience("authenticated"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("jwt subject: %w", err)
	}
	return &identity{ID: id, Email: claims.Email, FullName: metadataName(claims.UserMetadata)}, nil
}

func (a *Authenticator) verifyRemote(ctx context.Context, token string) (*identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(a.cfg.SupabaseURL, "/")+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", a.cfg.AnonKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("supabase user: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		ID           string         `json:"id"`
		Email        string         `json:"email"`
		UserMetadata map[string]any `json:"user_metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("supabase user: decode: %w", err)
	}
	id, err := uuid.Parse(out.ID)
	if err != nil {
		return nil, fmt.Errorf("supabase user id: %w", err)
	}
	return &identity{ID: id, Email: out.Email, FullName: metadataName(out.UserMetadata)}, nil
}

func (a *Authenticator) load(ctx context.Context, id *identity) (*User, error) {
	profile, err := a.users.EnsureProfile(ctx, id.ID, id.Email, id.FullName)
	if err != nil {
		return nil, err
	}
	roles, err := a.users.Roles(ctx, id.ID)
	if err != nil {
		return nil, err
	}
	perms, err := a.users.Permissions(ctx, roles)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:          id.ID,
		Email:       profile.Email,
		FullName:    profile.FullName,
		Roles:       roles,
		Permissions: perms,
	}, nil
}

func metadataName(meta map[string]any) *string {
	for _, key := range []string{"full_name", "name"} {
		if s, ok := meta[key].(string); ok && s != "" {
			return &s
		}
	}
	return nil
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	if slot, ok := ctx.Value(slotKey).(*userSlot); ok {
		slot.user = user
	}
	return context.WithValue(ctx, userKey, user)
}

// UserFromCtx extracts the authenticated user, or nil.
func UserFromCtx(ctx context.Context) *User {
	u, _ := ctx.Value(userKey).(*User)
	return u
}

// RequireAuth rejects requests without an authenticated user.
// Must be applied after Authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromCtx(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Authentification requise", CodeAuthRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns 403 unless the user holds one of roles.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromCtx(r.Context())
			if u == nil {
				writeError(w, http.StatusUnauthorized, "Authentification requise", CodeAuthRequired)
				return
			}
			if !slices.ContainsFunc(roles, u.HasRole) {
				writeError(w, http.StatusForbidden, "Accès refusé", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission returns 403 unless the user's roles grant perm.
func RequirePermission(perm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromCtx(r.Context())
			if u == nil {
				writeError(w, http.StatusUnauthorized, "Authentification requise", CodeAuthRequired)
				return
			}
			if !u.Can(perm) {
				writeError(w, http.StatusForbidden, "Accès refusé", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff admits admins and users whose roles carry at least one
// permission, i.e. anyone who can see part of the back-office.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromCtx(r.Context())
		if u == nil {
			writeError(w, http.StatusUnauthorized, "Authentification requise", CodeAuthRequired)
			return
		}
		if !u.HasRole(models.RoleAdmin) && len(u.Permissions) == 0 {
			writeError(w, http.StatusForbidden, "Accès refusé", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

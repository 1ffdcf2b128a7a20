package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cardjoy/giftbox-service/internal/key"
	"github.com/cardjoy/giftbox-service/internal/user"
	"github.com/cardjoy/giftbox-service/pkg/config"
	"github.com/cardjoy/giftbox-service/pkg/utils"
)

func JWTMiddleware(cfg config.Config, userRepo user.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			usr, ok := authenticateJWT(w, r, cfg, userRepo)
			if !ok {
				return
			}

			ctx := context.WithValue(r.Context(), utils.UserKey, *usr)
			ctx = context.WithValue(ctx, utils.PermissionsKey, []string{"*"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func APIKeyMiddleware(keyRepo key.Repository, userRepo user.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			usr, perms, ok := authenticateAPIKey(w, r, keyRepo, userRepo)
			if !ok {
				return
			}

			ctx := context.WithValue(r.Context(), utils.UserKey, *usr)
			ctx = context.WithValue(ctx, utils.PermissionsKey, perms)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UnifiedAuthMiddleware accepts either a Bearer JWT or an x-api-key header,
// whichever the caller presents.
func UnifiedAuthMiddleware(cfg config.Config, userRepo user.Repository, keyRepo key.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("x-api-key") != "" {
				usr, perms, ok := authenticateAPIKey(w, r, keyRepo, userRepo)
				if !ok {
					return
				}
				ctx := context.WithValue(r.Context(), utils.UserKey, *usr)
				ctx = context.WithValue(ctx, utils.PermissionsKey, perms)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			usr, ok := authenticateJWT(w, r, cfg, userRepo)
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), utils.UserKey, *usr)
			ctx = context.WithValue(ctx, utils.PermissionsKey, []string{"*"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticateJWT(w http.ResponseWriter, r *http.Request, cfg config.Config, userRepo user.Repository) (*user.User, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Authorization required", nil)
		return nil, false
	}

	tokenString := strings.Replace(authHeader, "Bearer ", "", 1)
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid token", nil)
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid token claims", nil)
		return nil, false
	}

	userIDStr, ok := claims[utils.UserIDKey].(string)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid user ID in token", nil)
		return nil, false
	}

	usr, err := userRepo.FindByID(userIDStr)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "User not found", nil)
		return nil, false
	}

	return usr, true
}

func authenticateAPIKey(w http.ResponseWriter, r *http.Request, keyRepo key.Repository, userRepo user.Repository) (*user.User, []string, bool) {
	apiKeyHeader := r.Header.Get("x-api-key")
	if apiKeyHeader == "" {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "API Key required", nil)
		return nil, nil, false
	}

	apiKey, err := keyRepo.FindByKey(apiKeyHeader)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid API Key", nil)
		return nil, nil, false
	}

	if apiKey.IsRevoked {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "API Key revoked", nil)
		return nil, nil, false
	}

	if time.Now().After(apiKey.ExpiresAt) {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "API key has expired", nil)
		return nil, nil, false
	}

	usr, err := userRepo.FindByID(apiKey.UserID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Associated user not found", nil)
		return nil, nil, false
	}

	return usr, apiKey.Permissions, true
}

func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			perms, ok := r.Context().Value(utils.PermissionsKey).([]string)
			if !ok {
				utils.BuildErrorResponse(w, http.StatusForbidden, "Permissions not found", nil)
				return
			}

			hasPerm := false
			for _, p := range perms {
				if p == "*" || p == perm {
					hasPerm = true
					break
				}
			}

			if !hasPerm {
				utils.BuildErrorResponse(w, http.StatusForbidden, "Insufficient permissions", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

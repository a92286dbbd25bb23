package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "medvault/pkg/domain"
	"medvault/pkg/requestcontext"
)

// TokenValidator resolves a bearer token into raw identity claims. The
// account/role service is the source of truth; this layer only consumes it.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims are the identity claims expected from the validator.
type Claims struct {
	SubjectID   string
	Role        string
	AuthorityID string // empty for patients
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// toCaller converts string claims into a typed caller.
func toCaller(claims *Claims) (id.Caller, error) {
	subjectID, err := id.ParseSubjectID(claims.SubjectID)
	if err != nil {
		return id.Caller{}, fmt.Errorf("invalid subject: %w", err)
	}
	role, err := id.ParseRole(claims.Role)
	if err != nil {
		return id.Caller{}, fmt.Errorf("invalid role: %w", err)
	}

	caller := id.Caller{SubjectID: subjectID, Role: role}
	if claims.AuthorityID != "" {
		caller.AuthorityID, err = id.ParseAuthorityID(claims.AuthorityID)
		if err != nil {
			return id.Caller{}, fmt.Errorf("invalid authority_id: %w", err)
		}
	}
	if role == id.RoleDoctor && caller.AuthorityID.IsNil() {
		return id.Caller{}, fmt.Errorf("doctor token without authority_id")
	}
	return caller, nil
}

// RequireAuth validates the bearer token and stores the resolved caller in the
// request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			caller, err := toCaller(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed token claims",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}

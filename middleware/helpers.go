package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Dosada05/swiss-engine/models"
	"github.com/Dosada05/swiss-engine/services"
)

func GetUserIDFromContext(ctx context.Context) (int, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return 0, errors.New("user claims not found in context")
	}

	claim, ok := claims[jwtClaimUserID]
	if !ok {
		return 0, fmt.Errorf("missing %q claim in token", jwtClaimUserID)
	}
	// encoding/json decodes JSON numbers into float64.
	asFloat, ok := claim.(float64)
	if !ok || asFloat != float64(int(asFloat)) {
		return 0, fmt.Errorf("invalid %q claim: %v", jwtClaimUserID, claim)
	}
	userID := int(asFloat)
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user ID in %q claim: %d", jwtClaimUserID, userID)
	}
	return userID, nil
}

func GetUserRoleFromContext(ctx context.Context) (models.UserRole, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("user claims not found in context")
	}

	claim, ok := claims[jwtClaimRole]
	if !ok {
		return "", fmt.Errorf("missing %q claim in token", jwtClaimRole)
	}
	roleStr, ok := claim.(string)
	if !ok {
		return "", fmt.Errorf("invalid type for %q claim: %T", jwtClaimRole, claim)
	}

	role := models.UserRole(roleStr)
	switch role {
	case models.RoleAdmin, models.RoleOrganizer, models.RolePlayer:
		return role, nil
	}
	return "", fmt.Errorf("invalid role in claim: %q", roleStr)
}

// CallerFromContext packages the authenticated identity for the service
// layer.
func CallerFromContext(ctx context.Context) (services.Caller, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return services.Caller{}, err
	}
	role, err := GetUserRoleFromContext(ctx)
	if err != nil {
		return services.Caller{}, err
	}
	return services.Caller{UserID: userID, Role: role}, nil
}

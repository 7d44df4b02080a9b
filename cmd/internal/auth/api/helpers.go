package authapi

import (
	"heirloom/cmd/identity"
	"heirloom/cmd/internal/auth/refresh"
	"heirloom/cmd/internal/auth/session"
	"heirloom/cmd/security/token"
)

func toUserResponse(u identity.User) userResponse {
	created := u.CreatedAt
	return userResponse{
		ID:             u.ID,
		Email:          u.Email,
		SessionVersion: u.SessionVersion,
		CreatedAt:      &created,
	}
}

func claimsUserResponse(c token.AccessClaims) userResponse {
	return userResponse{
		ID:             c.UserID,
		Email:          c.Email,
		SessionVersion: c.SessionVersion,
	}
}

func toSessionResponse(is session.Issued) sessionResponse {
	return sessionResponse{
		FamilyID:         is.FamilyID,
		AccessExpiresAt:  is.AccessExpiresAt,
		RefreshExpiresAt: is.RefreshExpiresAt,
		Persisted:        is.Persisted,
	}
}

func toRecordResponses(recs []refresh.Record) []refreshRecordResponse {
	out := make([]refreshRecordResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, refreshRecordResponse{
			ID:           r.ID,
			FamilyID:     r.FamilyID,
			Revoked:      r.Revoked,
			RevokedAt:    r.RevokedAt,
			RevokeReason: r.RevokeReason,
			ExpiresAt:    r.ExpiresAt,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out
}

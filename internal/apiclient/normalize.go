package apiclient

import (
	"encoding/json"
	"fmt"

	"rdportal/client/internal/models"
)

// wireProfile tolerates the overlapping field spellings the backend has
// produced over time (display_name vs displayName, avatar vs avatar_url).
// It exists only inside this package; everything downstream sees the
// canonical models.UserProfile.
type wireProfile struct {
	ID             string        `json:"id"`
	Username       string        `json:"username"`
	Email          string        `json:"email"`
	DisplayNameOld string        `json:"display_name"`
	DisplayNameNew string        `json:"displayName"`
	Avatar         string        `json:"avatar"`
	AvatarURL      string        `json:"avatar_url"`
	Team           string        `json:"team"`
	Title          string        `json:"title"`
	Role           string        `json:"role"`
	Roles          []models.Role `json:"roles"`
}

func normalizeProfile(raw json.RawMessage) (*models.UserProfile, error) {
	var wire wireProfile
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode user profile: %w", err)
	}

	profile := &models.UserProfile{
		ID:          wire.ID,
		Username:    wire.Username,
		Email:       wire.Email,
		DisplayName: firstNonEmpty(wire.DisplayNameOld, wire.DisplayNameNew, wire.Username),
		AvatarURL:   firstNonEmpty(wire.AvatarURL, wire.Avatar),
		Team:        wire.Team,
		Title:       wire.Title,
		Role:        wire.Role,
		Roles:       wire.Roles,
	}
	return profile, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

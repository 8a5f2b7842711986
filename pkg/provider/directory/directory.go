// Package directory defines the contract for the avatar directory backend
// and provides allowlist selection over its profiles.
package directory

import "context"

// AvatarProfile is one avatar as listed by the directory.
type AvatarProfile struct {
	AvatarID   string `json:"AvatarId"`
	Name       string `json:"Name"`
	ExternalID string `json:"ExternalId"`
	ImageURL   string `json:"ImageUrl"`
	Default    bool   `json:"Default"`
}

// Client lists the avatars available to the widget.
type Client interface {
	// ListAvatars returns every avatar profile the backend knows about.
	// An empty directory is not an error.
	ListAvatars(ctx context.Context) ([]AvatarProfile, error)
}

// SelectByExternalID filters profiles down to those whose external id is in
// the allowlist, preserving directory order.
func SelectByExternalID(profiles []AvatarProfile, allowlist []string) []AvatarProfile {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, id := range allowlist {
		allowed[id] = struct{}{}
	}
	var out []AvatarProfile
	for _, p := range profiles {
		if _, ok := allowed[p.ExternalID]; ok {
			out = append(out, p)
		}
	}
	return out
}

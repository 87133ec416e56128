package interfaces

import "context"

// Profile display identity for an address
type Profile struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	PfpURL      *string `json:"pfp_url"`
}

// ProfileLookup address -> profile enrichment, keyed by lower-cased address
type ProfileLookup interface {
	LookupProfiles(ctx context.Context, addresses []string) (map[string]Profile, error)
}

package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/oauth2"
)

var (
	// ErrNoCredential is returned when no credential could be obtained.
	ErrNoCredential = errors.New("no credential available")
	errEmptyToken   = errors.New("credential carries neither access nor refresh token")
)

// Credential is an OAuth token plus the scope set it was granted for.
type Credential struct {
	Token  *oauth2.Token
	Scopes []string
}

// Valid reports whether the access token can be used as is.
func (c Credential) Valid() bool {
	return c.Token != nil && c.Token.Valid()
}

// Refreshable reports whether an expired token can be refreshed without consent.
func (c Credential) Refreshable() bool {
	return c.Token != nil && c.Token.RefreshToken != ""
}

// Covers reports whether the credential was granted every scope in want. A
// credential without recorded scopes is assumed to cover anything.
func (c Credential) Covers(want []string) bool {
	if len(c.Scopes) == 0 {
		return true
	}
	for _, s := range want {
		if !slices.Contains(c.Scopes, s) && !slices.Contains(c.Scopes, FullScope) {
			return false
		}
	}
	return true
}

type storedCredential struct {
	*oauth2.Token
	Scopes []string `json:"scopes,omitempty"`
}

// encode serializes c and checks the result decodes back to the same tokens.
func encode(c Credential) ([]byte, error) {
	if c.Token == nil {
		return nil, errEmptyToken
	}
	data, err := json.Marshal(storedCredential{Token: c.Token, Scopes: c.Scopes})
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	back, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("credential does not round-trip: %w", err)
	}
	if back.Token.AccessToken != c.Token.AccessToken ||
		back.Token.RefreshToken != c.Token.RefreshToken ||
		!back.Token.Expiry.Equal(c.Token.Expiry) {
		return nil, errors.New("credential does not round-trip")
	}
	return data, nil
}

func decode(data []byte) (Credential, error) {
	var sc storedCredential
	if err := json.Unmarshal(data, &sc); err != nil {
		return Credential{}, fmt.Errorf("unmarshal credential: %w", err)
	}
	if sc.Token == nil || (sc.AccessToken == "" && sc.RefreshToken == "") {
		return Credential{}, errEmptyToken
	}
	return Credential{Token: sc.Token, Scopes: sc.Scopes}, nil
}

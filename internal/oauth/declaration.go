package oauth

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Declaration names the SmartThings OAuth endpoints and the scopes a plugin needs.
type Declaration struct {
	Provider     string
	AuthorizeURL string
	TokenURL     string
	Scopes       []string
	StatePath    string
}

// Scope is the space separated form sent to the token endpoint and kept in state files.
func (d Declaration) Scope() string {
	return strings.Join(d.Scopes, " ")
}

// Covers reports whether granted includes every declared scope.
// SmartThings echoes scopes back in its own order, so order is ignored.
func (d Declaration) Covers(granted string) bool {
	have := make(map[string]bool)
	for _, s := range strings.Fields(granted) {
		have[s] = true
	}
	for _, s := range d.Scopes {
		if !have[s] {
			return false
		}
	}
	return true
}

func (d Declaration) Validate() error {
	switch {
	case d.Provider == "":
		return fmt.Errorf("provider is required")
	case len(d.Scopes) == 0:
		return fmt.Errorf("scopes are required")
	case d.TokenURL == "":
		return fmt.Errorf("tokenURL is required")
	case d.StatePath == "":
		return fmt.Errorf("statePath is required")
	case !filepath.IsAbs(d.StatePath):
		return fmt.Errorf("statePath must be absolute")
	}
	return nil
}

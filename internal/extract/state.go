package extract

import "github.com/handiism/bandcamp-verificator/internal/model"

// Names of the cookies a verification session needs.
const (
	CookieClientID = "client_id"
	CookieSession  = "session"
	CookieIdentity = "identity"
)

var requiredCookies = []string{CookieClientID, CookieSession, CookieIdentity}

// State is filled in step by step during one extraction and then dropped.
type State struct {
	ClientID string
	Session  string
	Identity string
	Crumb    string

	// PageHTML is a rendered status page kept by sources that already
	// loaded one, so the crumb step can skip its own fetch.
	PageHTML string
}

func stateFromCookies(values map[string]string) State {
	return State{
		ClientID: values[CookieClientID],
		Session:  values[CookieSession],
		Identity: values[CookieIdentity],
	}
}

func hasRequired(values map[string]string) bool {
	for _, name := range requiredCookies {
		if values[name] == "" {
			return false
		}
	}
	return true
}

// cookieValues returns the state's cookies keyed by name.
func (s State) cookieValues() map[string]string {
	return map[string]string{
		CookieClientID: s.ClientID,
		CookieSession:  s.Session,
		CookieIdentity: s.Identity,
	}
}

// Credentials converts the state to model.Credentials.
func (s State) Credentials() model.Credentials {
	return model.Credentials{
		ClientID: s.ClientID,
		Session:  s.Session,
		Identity: s.Identity,
		Crumb:    s.Crumb,
	}
}

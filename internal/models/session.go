package models

// SessionStatus enumerates the coarse lifecycle states of the session manager.
type SessionStatus string

const (
	SessionUninitialized SessionStatus = "UNINITIALIZED"
	SessionAuthenticated SessionStatus = "AUTHENTICATED"
	SessionAnonymous     SessionStatus = "ANONYMOUS"
	SessionRefreshing    SessionStatus = "REFRESHING"
)

// Session is the in-memory record observed by the rest of the application.
// Token is empty exactly when User is nil.
type Session struct {
	Token     string       `json:"-"`
	User      *UserProfile `json:"user"`
	IsLoading bool         `json:"isLoading"`
}

// Authenticated reports whether the session carries credentials.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// Clone returns a deep copy so observers never share mutable state.
func (s Session) Clone() Session {
	out := s
	if s.User != nil {
		u := s.User.Clone()
		out.User = &u
	}
	return out
}

// AnonymousSession is the terminal logged-out state.
func AnonymousSession() Session {
	return Session{}
}

// SessionView is the gateway representation of a session.
type SessionView struct {
	Status        SessionStatus `json:"status"`
	Authenticated bool          `json:"authenticated"`
	IsLoading     bool          `json:"isLoading"`
	User          *UserProfile  `json:"user,omitempty"`
	DisplayName   string        `json:"displayName,omitempty"`
}

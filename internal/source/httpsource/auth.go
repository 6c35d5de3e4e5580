package httpsource

import "net/http"

// Authenticator attaches a static credential to every request.
type Authenticator interface {
	Apply(req *http.Request)
}

type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.Username, a.Password)
}

type BearerToken struct {
	Token string
}

func (a BearerToken) Apply(req *http.Request) {
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
}

// APIKey sends the key in a named header, X-Api-Key by default.
type APIKey struct {
	Header string
	Key    string
}

func (a APIKey) Apply(req *http.Request) {
	header := a.Header
	if header == "" {
		header = "X-Api-Key"
	}
	req.Header.Set(header, a.Key)
}

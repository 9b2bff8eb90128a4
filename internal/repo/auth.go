package repo

import (
	"github.com/golang-jwt/jwt/v5"
)

// Auth presents a credential to the backend. The result arrives through
// complete with opaque session data, or through cancel with the denial.
// When the credential is a JWT its unverified claims are attached to the
// session data under "claims"; verification is the server's job. The
// credential is retained and re-presented on every fresh connection until
// Unauth or a denial.
func (r *Repo) Auth(credential string, complete func(data map[string]any, err error), cancel func(err error)) {
	r.post(func() {
		r.credential = credential
		r.authComplete = complete
		r.authCancel = cancel
		r.authClaims = parseClaims(credential)
		r.conn.Auth(credential)
	})
}

// Unauth drops the session and stops re-presenting the credential.
func (r *Repo) Unauth() {
	r.post(func() {
		r.credential = ""
		r.authClaims = nil
		r.authComplete = nil
		r.authCancel = nil
		r.conn.Unauth()
	})
}

func parseClaims(credential string) map[string]any {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(credential, claims); err != nil {
		// Opaque, non-JWT credentials are fine; there is just nothing to
		// surface locally.
		return nil
	}
	return map[string]any(claims)
}

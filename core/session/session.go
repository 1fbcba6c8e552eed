// Package session owns the authentication token of the single operator and the request
// identity derived from it.
package session

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/lms"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	contentType      = "application/json;charset=UTF-8"
	unknownUser      = "unknown"
	tokenCookie      = "token"
)

var (
	ErrNoSession  = errors.New("no session")
	ErrEmptyToken = errors.New("empty token")
)

// claims that may carry the user id of a JWT-shaped token, in lookup order
var userClaims = []string{"userId", "userID", "uid", "sub"}

type (
	// Session is the persisted authentication state.
	Session struct {
		Token  string `json:"token"`
		UserID string `json:"userId,omitempty"`
	}

	// Repository persists the Session between runs.
	Repository interface {
		Load() (Session, error)
		Save(sess Session) error
	}

	// IdentitySource provides the identity a cycle runs with.
	IdentitySource interface {
		Identity() Identity
	}

	// CourseLister is the query used to verify a token.
	CourseLister interface {
		ListCourses(ctx context.Context, id Identity) []lms.Course
	}
)

// User returns the user id sent in submissions.
func (s Session) User() string {
	if s.UserID == "" {
		return unknownUser
	}
	return s.UserID
}

// MaskedToken returns the token in a form fit for logs.
func (s Session) MaskedToken() string {
	return core.MaskSecret(s.Token)
}

// LoadToken builds a Session out of a raw token. The user id is read from the claims of
// JWT-shaped tokens; the signature is never checked.
func LoadToken(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrEmptyToken
	}
	return Session{Token: token, UserID: userIDFromClaims(token)}, nil
}

func userIDFromClaims(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, key := range userClaims {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// Identity is the request identity derived from one token.
type Identity struct {
	Token   string
	UserID  string
	Header  http.Header
	Cookies []*http.Cookie // one token cookie per backend domain
}

// NewIdentity derives the request identity of `sess`, with a token cookie for every domain.
func NewIdentity(sess Session, userAgent string, domains []string) Identity {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	h := make(http.Header)
	h.Set("token", sess.Token)
	h.Set("Authorization", sess.Token)
	h.Set("User-Agent", userAgent)
	h.Set("Content-Type", contentType)
	h.Set("Accept", "application/json, text/plain, */*")

	cookies := make([]*http.Cookie, 0, len(domains))
	for _, d := range domains {
		cookies = append(cookies, &http.Cookie{Name: tokenCookie, Value: sess.Token, Domain: d, Path: "/"})
	}
	return Identity{Token: sess.Token, UserID: sess.User(), Header: h, Cookies: cookies}
}

// Valid reports whether the identity carries a token.
func (id Identity) Valid() bool {
	return id.Token != ""
}

// Apply merges the identity into `req`: the identity headers and the cookie-style header,
// built from the cookies scoped to the request host.
func (id Identity) Apply(req *http.Request) {
	for k, v := range id.Header {
		req.Header[k] = append([]string(nil), v...)
	}
	if !id.Valid() {
		return
	}
	host := req.URL.Hostname()
	added := make(map[string]bool)
	for _, c := range id.Cookies {
		if !added[c.Name] && domainMatch(host, c.Domain) {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
			added[c.Name] = true
		}
	}
	if !added[tokenCookie] {
		req.AddCookie(&http.Cookie{Name: tokenCookie, Value: id.Token})
	}
}

func domainMatch(host, domain string) bool {
	domain = strings.TrimPrefix(domain, ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

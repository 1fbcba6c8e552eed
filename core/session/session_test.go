package session

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ulearn/core/lms"
	"github.com/trezcool/ulearn/tests"
)

type memRepo struct {
	sess    Session
	loadErr error
	saveErr error
	saves   int
}

func (r *memRepo) Load() (Session, error) {
	if r.loadErr != nil {
		return Session{}, r.loadErr
	}
	return r.sess, nil
}

func (r *memRepo) Save(sess Session) error {
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.sess = sess
	return nil
}

type lister struct {
	courses []lms.Course
	seen    []Identity
}

func (l *lister) ListCourses(_ context.Context, id Identity) []lms.Course {
	l.seen = append(l.seen, id)
	return l.courses
}

func fakeJWT(payload string) string {
	enc := base64.RawURLEncoding.EncodeToString
	return enc([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." + enc([]byte(payload)) + ".c2lnbmF0dXJl"
}

func newStore(repo Repository) (*Store, *testutil.Logger) {
	logger := testutil.NewLogger()
	return NewStore(repo, lms.DefaultEndpoints(), "", logger), logger
}

func TestLoadToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		wantErr  error
		wantUser string
	}{
		{name: "empty", token: "  \n", wantErr: ErrEmptyToken},
		{name: "opaque", token: " 0123456789ABCDEFGHIJ ", wantUser: "unknown"},
		{name: "jwt string claim", token: fakeJWT(`{"userId":"2023001"}`), wantUser: "2023001"},
		{name: "jwt numeric claim", token: fakeJWT(`{"uid":12345678}`), wantUser: "12345678"},
		{name: "jwt subject", token: fakeJWT(`{"sub":"dgut2023"}`), wantUser: "dgut2023"},
		{name: "jwt without user", token: fakeJWT(`{"exp":1}`), wantUser: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := LoadToken(tt.token)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.NotContains(t, sess.Token, " ")
			assert.Equal(t, tt.wantUser, sess.User())
		})
	}
}

func TestStore_Load(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		store, logger := newStore(&memRepo{loadErr: ErrNoSession})
		_, ok := store.Load()
		assert.False(t, ok)
		assert.True(t, logger.Contains("no saved session"))
	})

	t.Run("malformed", func(t *testing.T) {
		store, logger := newStore(&memRepo{loadErr: errors.New("invalid character")})
		_, ok := store.Load()
		assert.False(t, ok)
		assert.False(t, store.Identity().Valid())
		assert.True(t, logger.Contains("could not load session"))
	})

	t.Run("empty token", func(t *testing.T) {
		store, _ := newStore(&memRepo{sess: Session{UserID: "x"}})
		_, ok := store.Load()
		assert.False(t, ok)
	})

	t.Run("present", func(t *testing.T) {
		store, logger := newStore(&memRepo{sess: Session{Token: "abcdefgh-0123456789-stuvwxyz", UserID: "u1"}})
		sess, ok := store.Load()
		require.True(t, ok)
		assert.Equal(t, "u1", sess.UserID)
		assert.True(t, logger.Contains("abcdefgh...stuvwxyz"))
		assert.False(t, logger.Contains("0123456789"), "token must be masked in logs")

		cur, ok := store.Current()
		assert.True(t, ok)
		assert.Equal(t, sess, cur)
	})
}

func TestStore_Save(t *testing.T) {
	repo := &memRepo{}
	store, _ := newStore(repo)

	assert.Equal(t, ErrEmptyToken, store.Save(Session{}))
	assert.Zero(t, repo.saves)

	require.NoError(t, store.Save(Session{Token: "first-token-value-0001", UserID: "u1"}))
	require.NoError(t, store.Save(Session{Token: "second-token-value-002", UserID: "u1"}))
	assert.Equal(t, "second-token-value-002", repo.sess.Token)
	assert.Equal(t, "second-token-value-002", store.Identity().Header.Get("token"))

	t.Run("persistence failure keeps the session in memory", func(t *testing.T) {
		repo := &memRepo{saveErr: errors.New("read-only file system")}
		store, logger := newStore(repo)

		err := store.Save(Session{Token: "in-memory-token-000001"})

		assert.Error(t, err)
		assert.True(t, logger.Contains("keeping it in memory"))
		sess, ok := store.Current()
		assert.True(t, ok)
		assert.Equal(t, "in-memory-token-000001", sess.Token)
		assert.Equal(t, "in-memory-token-000001", store.Identity().Token)
	})
}

func TestStore_Identity(t *testing.T) {
	store, _ := newStore(&memRepo{})
	_, err := store.Replace("token-one-000000000000")
	require.NoError(t, err)

	id := store.Identity()
	assert.Equal(t, "token-one-000000000000", id.Header.Get("token"))
	assert.Equal(t, "token-one-000000000000", id.Header.Get("Authorization"))
	assert.Equal(t, DefaultUserAgent, id.Header.Get("User-Agent"))
	assert.Equal(t, "application/json;charset=UTF-8", id.Header.Get("Content-Type"))
	assert.Len(t, id.Cookies, len(lms.DefaultEndpoints().CookieDomains()))
	for _, c := range id.Cookies {
		assert.Equal(t, "token-one-000000000000", c.Value)
	}

	// snapshots are isolated from later replacements
	id.Header.Set("token", "tampered")
	_, err = store.Replace("token-two-000000000000")
	require.NoError(t, err)
	assert.Equal(t, "tampered", id.Header.Get("token"))

	next := store.Identity()
	assert.Equal(t, "token-two-000000000000", next.Header.Get("token"))
	for _, c := range next.Cookies {
		assert.Equal(t, "token-two-000000000000", c.Value, "no cookie may outlive its token")
	}
}

func TestIdentity_Apply(t *testing.T) {
	sess := Session{Token: "tkn-0123456789abcdef"}
	id := NewIdentity(sess, DefaultUserAgent, lms.DefaultEndpoints().CookieDomains())

	tests := []struct {
		name string
		url  string
	}{
		{name: "backend domain", url: "https://lms.dgut.edu.cn/api/courses/students"},
		{name: "parent domain", url: "https://application.dgut.edu.cn/x"},
		{name: "unscoped host", url: "http://127.0.0.1:8080/h1/courses/students"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, tt.url, nil)
			require.NoError(t, err)
			id.Apply(req)

			assert.Equal(t, "token=tkn-0123456789abcdef", req.Header.Get("Cookie"))
			assert.Equal(t, "tkn-0123456789abcdef", req.Header.Get("token"))
		})
	}

	req, _ := http.NewRequest(http.MethodGet, "https://lms.dgut.edu.cn/", nil)
	Identity{Header: http.Header{}}.Apply(req)
	assert.Empty(t, req.Header.Get("Cookie"))
}

func TestStore_Verify(t *testing.T) {
	store, _ := newStore(&memRepo{})
	l := &lister{courses: []lms.Course{{ID: 1, Name: "Math"}}}

	assert.False(t, store.Verify(context.Background(), l), "no token")
	assert.Empty(t, l.seen)

	_, err := store.Replace("verify-token-000000000")
	require.NoError(t, err)
	assert.True(t, store.Verify(context.Background(), l))
	require.Len(t, l.seen, 1)
	assert.Equal(t, "verify-token-000000000", l.seen[0].Token)

	l.courses = nil
	assert.False(t, store.Verify(context.Background(), l))
}

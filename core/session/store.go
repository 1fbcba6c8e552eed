package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/lms"
)

// Store holds the current Session. Only the operator replaces it; scheduled jobs take an
// Identity snapshot at the start of each cycle.
type Store struct {
	repo      Repository
	userAgent string
	domains   []string
	logger    core.Logger

	mu   sync.RWMutex
	sess Session
	id   Identity
}

var _ IdentitySource = (*Store)(nil)

func NewStore(repo Repository, endpoints lms.Endpoints, userAgent string, logger core.Logger) *Store {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	s := &Store{
		repo:      repo,
		userAgent: userAgent,
		domains:   endpoints.CookieDomains(),
		logger:    logger,
	}
	s.id = NewIdentity(Session{}, userAgent, nil)
	return s
}

// Load restores the persisted Session. An absent or malformed session is reported as
// "no session" and is never an error.
func (s *Store) Load() (Session, bool) {
	sess, err := s.repo.Load()
	if err == nil && sess.Token == "" {
		err = ErrNoSession
	}
	if err != nil {
		if errors.Cause(err) == ErrNoSession {
			s.logger.Info("no saved session")
		} else {
			s.logger.Warn(fmt.Sprintf("could not load session: %v", err))
		}
		return Session{}, false
	}
	s.set(sess)
	s.logger.Info("loaded token " + sess.MaskedToken())
	return sess, true
}

// Save replaces the current Session and persists it. When persisting fails the Session is
// kept in memory for this run and the error is returned.
func (s *Store) Save(sess Session) error {
	if sess.Token == "" {
		return ErrEmptyToken
	}
	s.set(sess)
	if err := s.repo.Save(sess); err != nil {
		s.logger.Error(fmt.Sprintf("could not persist session, keeping it in memory: %v", err))
		return errors.Wrap(err, "persisting session")
	}
	s.logger.Info("saved token " + sess.MaskedToken())
	return nil
}

// Replace loads `token` and saves the resulting Session.
func (s *Store) Replace(token string) (Session, error) {
	sess, err := LoadToken(token)
	if err != nil {
		return Session{}, err
	}
	return sess, s.Save(sess)
}

func (s *Store) set(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	s.id = NewIdentity(sess, s.userAgent, s.domains)
}

// Current returns the current Session and whether there is one.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess, s.sess.Token != ""
}

// Identity returns a snapshot of the request identity of the current Session.
func (s *Store) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := s.id
	id.Header = s.id.Header.Clone()
	id.Cookies = append(id.Cookies[:0:0], s.id.Cookies...)
	return id
}

// Verify reports whether the current token lists at least one course.
func (s *Store) Verify(ctx context.Context, lister CourseLister) bool {
	id := s.Identity()
	if !id.Valid() {
		return false
	}
	return len(lister.ListCourses(ctx, id)) > 0
}

// ReplaceAndVerify replaces the token then verifies it against `lister`. A token failing
// verification is kept. A persistence failure keeps the token in memory and is returned
// along with the verification result.
func (s *Store) ReplaceAndVerify(ctx context.Context, token string, lister CourseLister) (Session, bool, error) {
	sess, err := s.Replace(token)
	if errors.Cause(err) == ErrEmptyToken {
		return sess, false, err
	}
	return sess, s.Verify(ctx, lister), err
}

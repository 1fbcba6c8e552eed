// Package filestore persists the session as a small JSON document.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core/session"
)

type sessionRepository struct {
	path string
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(path string) *sessionRepository {
	return &sessionRepository{path: path}
}

func (repo *sessionRepository) Load() (session.Session, error) {
	var sess session.Session
	data, err := os.ReadFile(repo.path)
	if err != nil {
		if os.IsNotExist(err) {
			return sess, session.ErrNoSession
		}
		return sess, errors.Wrapf(err, "reading %s", repo.path)
	}
	if err = json.Unmarshal(data, &sess); err != nil {
		return sess, errors.Wrapf(err, "decoding %s", repo.path)
	}
	return sess, nil
}

// Save replaces the file atomically: readers see the old or the new session, never a torn one.
func (repo *sessionRepository) Save(sess session.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	dir := filepath.Dir(repo.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(repo.path)+".*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing session")
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "syncing session")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing session")
	}
	if err = os.Chmod(tmp.Name(), 0o600); err != nil {
		return errors.Wrap(err, "chmod session")
	}
	return errors.Wrapf(os.Rename(tmp.Name(), repo.path), "replacing %s", repo.path)
}

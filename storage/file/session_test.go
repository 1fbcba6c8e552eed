package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ulearn/core/session"
)

func TestSessionRepository_Load(t *testing.T) {
	tests := []struct {
		name    string
		content *string
		want    session.Session
		wantErr error
		anyErr  bool
	}{
		{name: "absent", wantErr: session.ErrNoSession},
		{name: "saved", content: strPtr(`{"token":"abc","userId":"42"}`), want: session.Session{Token: "abc", UserID: "42"}},
		{name: "legacy key", content: strPtr(`{"token":"abc","userID":"manual"}`), want: session.Session{Token: "abc", UserID: "manual"}},
		{name: "malformed", content: strPtr(`{"token":`), anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cookie.txt")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0o600))
			}

			got, err := NewSessionRepository(path).Load()
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSessionRepository_Save(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookie.txt")
	repo := NewSessionRepository(path)

	require.NoError(t, repo.Save(session.Session{Token: "first"}))
	require.NoError(t, repo.Save(session.Session{Token: "second", UserID: "7"}))

	got, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, session.Session{Token: "second", UserID: "7"}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSessionRepository_Save_missingDir(t *testing.T) {
	repo := NewSessionRepository(filepath.Join(t.TempDir(), "nope", "cookie.txt"))
	assert.Error(t, repo.Save(session.Session{Token: "x"}))
}

func strPtr(s string) *string { return &s }

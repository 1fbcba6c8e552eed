package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/ini.v1"

	"github.com/trezcool/ulearn/apps/shared"
	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/course"
	"github.com/trezcool/ulearn/core/history"
	"github.com/trezcool/ulearn/core/resolver"
	"github.com/trezcool/ulearn/core/session"
	"github.com/trezcool/ulearn/storage/database"
	inmemdb "github.com/trezcool/ulearn/storage/database/inmem"
	filestore "github.com/trezcool/ulearn/storage/file"
	"github.com/trezcool/ulearn/storage/inifile"
	"github.com/trezcool/ulearn/tests"
)

type fixture struct {
	cli  *commandLine
	out  *bytes.Buffer
	fake *testutil.FakeLMS
	dir  string
}

func setup(t *testing.T) *fixture {
	dir := t.TempDir()
	logger := testutil.NewLogger()
	fake := testutil.NewFakeLMS(t)
	r, err := resolver.New(&http.Client{}, time.Second, logger)
	require.NoError(t, err)
	validate, translator := shared.NewValidator()
	conf := inifile.New(filepath.Join(dir, "config.ini"))
	out := new(bytes.Buffer)

	return &fixture{
		cli: &commandLine{
			db:         testutil.PrepareDB(t).DB,
			engine:     database.EngineSQLite,
			config:     conf,
			codes:      inifile.NewSignCodes(conf, logger),
			history:    inmemdb.NewHistoryRepository(inmemdb.Open()),
			sessions:   session.NewStore(filestore.NewSessionRepository(filepath.Join(dir, "cookie.txt")), fake.Endpoints(), "", logger),
			courses:    course.NewDirectory(r, fake.Endpoints(), logger),
			validate:   validate,
			translator: translator,
			prompt:     shared.NewPrompt(strings.NewReader(""), out, readSecret),
			out:        out,
		},
		out:  out,
		fake: fake,
		dir:  dir,
	}
}

// withInput feeds `lines` to the prompts and `secrets` to the hidden prompts, in order.
func (f *fixture) withInput(lines string, secrets ...string) {
	f.cli.prompt = shared.NewPrompt(strings.NewReader(lines), f.out, readSecret)
	readPasswordFunc = func(int) ([]byte, error) {
		if len(secrets) == 0 {
			return nil, nil
		}
		s := secrets[0]
		secrets = secrets[1:]
		return []byte(s), nil
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	f := setup(t)
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "codes: no subcommand", args: []string{"codes"}, wantErr: errHelp},
		{name: "codes: unknown subcommand", args: []string{"codes", "lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Contains(t, f.out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)
	defer func() { gooseRunFunc = database.Migrate }()

	gooseRunFunc = func(db *sql.DB, engine, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "0"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	t.Run("memory engine", func(t *testing.T) {
		f.cli.db = nil
		assert.Equal(t, database.ErrNoDatabase, f.cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_migrate_real(t *testing.T) {
	f := setup(t)
	assert.NoError(t, f.cli.run([]string{"admin", "migrate", "version"}))
	assert.NoError(t, f.cli.run([]string{"admin", "migrate", "up"}))
}

func Test_commandLine_configure(t *testing.T) {
	type extra struct {
		lines   string
		secrets []string
		check   func(t *testing.T, cfg *ini.File)
	}
	tests := []cliTest{
		{
			name: "full setup",
			extra: extra{
				lines:   "2023463030604\n\n\nbot@example.com\nme@example.com\n",
				secrets: []string{"pw", "auth"},
				check: func(t *testing.T, cfg *ini.File) {
					assert.Equal(t, "dgut2023463030604", cfg.Section("Account").Key("username").String())
					assert.Equal(t, "pw", cfg.Section("Account").Key("password").String())
					assert.Equal(t, core.DefaultLat, cfg.Section("Location").Key("lat").String())
					assert.Equal(t, core.DefaultLon, cfg.Section("Location").Key("lon").String())
					assert.Equal(t, "auth", cfg.Section("Email").Key("auth_code").String())
					assert.Equal(t, "me@example.com", cfg.Section("Email").Key("to_addr").String())
				},
			},
		},
		{
			name: "no mail",
			extra: extra{
				lines:   "dgut1\n23.0\n113.0\n\n",
				secrets: []string{"pw"},
				check: func(t *testing.T, cfg *ini.File) {
					assert.Equal(t, "dgut1", cfg.Section("Account").Key("username").String())
					assert.Equal(t, "23.0", cfg.Section("Location").Key("lat").String())
					assert.Equal(t, "", cfg.Section("Email").Key("from_addr").String())
				},
			},
		},
		{name: "no username", extra: extra{lines: "\n"}, wantErr: shared.ErrUsernameRequired},
		{name: "no password", extra: extra{lines: "2023\n", secrets: []string{""}}, wantErr: shared.ErrPasswordRequired},
		{name: "bad latitude", extra: extra{lines: "2023\n123\n\n", secrets: []string{"pw"}}, wantErrStr: core.ErrInvalidInput.Error()},
		{name: "bad recipient", extra: extra{lines: "2023\n\n\nbot@example.com\nnope\n", secrets: []string{"pw", "auth"}}, wantErrStr: core.ErrInvalidInput.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ex := tt.extra.(extra)
			f.withInput(ex.lines, ex.secrets...)

			err := f.cli.run([]string{"admin", "configure"})
			tt.check(t, err)
			if ex.check != nil && err == nil {
				cfg, err := ini.Load(f.cli.config.Path())
				require.NoError(t, err)
				ex.check(t, cfg)
				assert.Contains(t, f.out.String(), "config saved to")
			}
		})
	}
}

func Test_commandLine_token(t *testing.T) {
	type extra struct {
		secret  string
		courses string
		wantOut string
	}
	tests := []cliTest{
		{name: "flag value, verified", args: []string{"token", "-value", "flag-token-0000000000001"}, extra: extra{courses: `{"courseList":[{"id":1,"name":"Math"}]}`, wantOut: "token verified"}},
		{name: "prompted, not verified", args: []string{"token"}, extra: extra{secret: "prompt-token-00000000001", courses: `{"courseList":[]}`, wantOut: "token saved but not verified"}},
		{name: "prompted, empty", args: []string{"token"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ex, _ := tt.extra.(extra)
			f.withInput("", ex.secret)
			if ex.courses != "" {
				f.fake.HandleAll(testutil.OpCourses, testutil.JSON(ex.courses))
			}

			err := f.cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if err != nil {
				return
			}
			assert.Contains(t, f.out.String(), ex.wantOut)

			saved, err := filestore.NewSessionRepository(filepath.Join(f.dir, "cookie.txt")).Load()
			require.NoError(t, err)
			cur, _ := f.cli.sessions.Current()
			assert.Equal(t, cur.Token, saved.Token)
		})
	}
}

func Test_commandLine_codes(t *testing.T) {
	f := setup(t)
	run := func(args ...string) error {
		return f.cli.run(append([]string{"admin", "codes"}, args...))
	}

	assert.Equal(t, errHelp, run("set", "-course", "Math"))
	assert.Equal(t, errHelp, run("delete"))

	require.NoError(t, run("list"))
	assert.Contains(t, f.out.String(), "(none)")

	require.NoError(t, run("set", "-course", "Math", "-code", "1234"))
	require.NoError(t, run("set", "-course", "Data Structures", "-code", "5678"))
	f.out.Reset()
	require.NoError(t, run("list"))
	assert.Equal(t, "  Data Structures: 5678\n  Math: 1234\n", f.out.String())

	code, ok := f.cli.codes.Code("math")
	assert.True(t, ok)
	assert.Equal(t, "1234", code)

	f.out.Reset()
	require.NoError(t, run("delete", "-course", "Math"))
	require.NoError(t, run("delete", "-course", "Math"))
	require.NoError(t, run("delete", "-course", "Data Structure"))
	assert.Equal(t, "deleted\nno code for Math\nno code for Data Structure, did you mean Data Structures?\n", f.out.String())
}

func Test_commandLine_apikey(t *testing.T) {
	f := setup(t)
	defer func() { randReadFunc = rand.Read }()

	t.Run("generated", func(t *testing.T) {
		randReadFunc = func(b []byte) (int, error) {
			for i := range b {
				b[i] = 0xab
			}
			return len(b), nil
		}
		f.out.Reset()
		require.NoError(t, f.cli.run([]string{"admin", "apikey"}))

		key := strings.Repeat("ab", apiKeyBytes)
		assert.Contains(t, f.out.String(), "api key: "+key)

		cfg, err := ini.Load(f.cli.config.Path())
		require.NoError(t, err)
		hash := cfg.Section("Server").Key("api_key_hash").String()
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)))
	})

	t.Run("no randomness", func(t *testing.T) {
		randReadFunc = func([]byte) (int, error) { return 0, fmt.Errorf("entropy exhausted") }
		cliTest{wantErrStr: "generating api key: entropy exhausted"}.check(t, f.cli.run([]string{"admin", "apikey"}))
	})
}

func Test_commandLine_history(t *testing.T) {
	f := setup(t)
	at := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	recs := []history.Record{
		{RunID: "run-1", Kind: history.KindCheckin, Course: "Math", Outcome: history.OutcomeSigned, CreatedAt: at},
		{RunID: "run-1", Kind: history.KindCheckin, Course: "Art", Outcome: history.OutcomeNeedsCode, CreatedAt: at},
		{RunID: "run-2", Kind: history.KindHomework, Course: "Math", Detail: "Essay", Outcome: history.OutcomeUnfinished, CreatedAt: at.Add(time.Hour)},
	}
	require.NoError(t, f.cli.history.Add(context.Background(), recs...))

	tests := []cliTest{
		{name: "all", extra: []string{"Math - Essay", "Art", "Math"}},
		{name: "by kind", args: []string{"-kind", "homework"}, extra: []string{"Math - Essay"}},
		{name: "limited", args: []string{"-limit", "1"}, extra: []string{"Math - Essay"}},
		{name: "by run", args: []string{"-run", "run-1"}, extra: []string{"Math", "Art"}},
		{name: "unknown run", args: []string{"-run", "nope"}, wantErr: history.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.out.Reset()
			err := f.cli.run(append([]string{"admin", "history"}, tt.args...))
			tt.check(t, err)
			if err != nil {
				return
			}
			lines := strings.Split(strings.TrimSpace(f.out.String()), "\n")
			want := tt.extra.([]string)
			require.Len(t, lines, len(want))
			for i, w := range want {
				assert.True(t, strings.HasSuffix(lines[i], w), "line %d: %q", i, lines[i])
			}
		})
	}
}

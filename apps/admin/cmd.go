package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/ulearn/apps/shared"
	"github.com/trezcool/ulearn/core/history"
	"github.com/trezcool/ulearn/core/session"
	"github.com/trezcool/ulearn/storage/inifile"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

func readSecret() ([]byte, error) {
	return readPasswordFunc(int(syscall.Stdin))
}

type commandLine struct {
	db         *sql.DB // nil with the memory engine
	engine     string
	config     *inifile.File
	codes      *inifile.SignCodes
	history    history.Repository
	sessions   *session.Store
	courses    session.CourseLister
	validate   *validator.Validate
	translator ut.Translator
	prompt     *shared.Prompt
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  configure                               - write config.ini (account, location, mail)")
	fmt.Fprintln(cli.out, "  token [-value TOKEN]                    - replace the session token and verify it")
	fmt.Fprintln(cli.out, "  codes list                              - list preset sign codes")
	fmt.Fprintln(cli.out, "  codes set -course NAME -code CODE       - add or change a sign code")
	fmt.Fprintln(cli.out, "  codes delete -course NAME               - remove a sign code")
	fmt.Fprintln(cli.out, "  history [-limit N] [-kind K] [-run ID]  - show recorded outcomes")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                  - run a goose command on the history database")
	fmt.Fprintln(cli.out, "  apikey                                  - generate a new control API key")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenValue := tokenCmd.String("value", "", "The token. It is prompted when omitted.")

	historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
	historyLimit := historyCmd.Int("limit", history.DefaultLimit, "Maximum number of records.")
	historyKind := historyCmd.String("kind", "", "Only records of this kind: checkin or homework.")
	historyRun := historyCmd.String("run", "", "Only the records of this run id.")

	switch args[1] {
	case "configure":
		_, err := shared.SetupWizard(cli.prompt, cli.config, cli.validate, cli.translator)
		return err
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		token := strings.TrimSpace(*tokenValue)
		if token == "" {
			tok, err := cli.prompt.Secret("Enter token:")
			if err != nil {
				return err
			}
			token = tok
		}
		if token == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.replaceToken(token)
	case "codes":
		return cli.signCodes(args[2:])
	case "history":
		if err := historyCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.showHistory(*historyRun, history.Filter{Kind: *historyKind, Limit: *historyLimit})
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "apikey":
		return cli.newAPIKey()
	default:
		cli.printUsage()
		return errHelp
	}
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

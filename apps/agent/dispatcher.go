package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/apps/shared"
	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/agent"
	"github.com/trezcool/ulearn/core/attendance"
	"github.com/trezcool/ulearn/storage/inifile"
)

var errNoToken = errors.New("no token: enter one with `token`")

type (
	command struct {
		key     string
		aliases []string
		help    string
		run     func(ctx context.Context) error
	}

	// dispatcher is the operator menu. It maps numbered and named commands to the agent.
	dispatcher struct {
		svc        *agent.Service
		conf       *core.Config
		config     *inifile.File
		codes      *inifile.SignCodes
		validate   *validator.Validate
		translator ut.Translator
		prompt     *shared.Prompt
		reload     func(path string) (*core.Config, error)

		commands []command
	}
)

func newDispatcher(d *dispatcher) *dispatcher {
	if d.reload == nil {
		d.reload = core.NewConfig
	}
	d.commands = []command{
		{key: "1", aliases: []string{"start"}, help: "Start (or restart) the service", run: d.start},
		{key: "2", aliases: []string{"checkin"}, help: "Check in now", run: d.checkIn(attendance.Unattended)},
		{key: "3", aliases: []string{"code"}, help: "Check in now, asking for sign codes", run: d.checkIn(attendance.Interactive)},
		{key: "4", aliases: []string{"homework"}, help: "Scan homework now", run: d.homework},
		{key: "5", aliases: []string{"verify"}, help: "Verify the token", run: d.verify},
		{key: "6", aliases: []string{"codes"}, help: "Manage sign codes", run: d.signCodes},
		{key: "7", aliases: []string{"configure"}, help: "Reconfigure", run: d.configure},
		{key: "8", aliases: []string{"config"}, help: "Show the configuration", run: d.showConfig},
		{key: "9", aliases: []string{"token"}, help: "Enter a token", run: d.enterToken},
		{aliases: []string{"stop"}, help: "Stop the service", run: d.stop},
		{aliases: []string{"status"}, help: "Show the service status", run: d.status},
		{aliases: []string{"help", "?"}, help: "Show this menu", run: d.menu},
		{key: "0", aliases: []string{"quit", "exit"}, help: "Quit", run: d.quit},
	}
	return d
}

func (d *dispatcher) lookup(input string) (command, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	for _, cmd := range d.commands {
		if cmd.key != "" && cmd.key == input {
			return cmd, true
		}
		for _, alias := range cmd.aliases {
			if alias == input {
				return cmd, true
			}
		}
	}
	return command{}, false
}

// dispatch runs the command named by `input`.
func (d *dispatcher) dispatch(ctx context.Context, input string) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	cmd, ok := d.lookup(input)
	if !ok {
		return core.NewArgumentError(fmt.Sprintf("unknown command %q, type `help`", input))
	}
	return cmd.run(ctx)
}

// loop reads commands until quit or end of input. Command errors are printed, not returned.
func (d *dispatcher) loop(ctx context.Context) error {
	_ = d.menu(ctx)
	for {
		input, err := d.prompt.Line("\n> ")
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading command")
		}
		if err = d.dispatch(ctx, input); err != nil {
			if core.IsShutdown(err) {
				return nil
			}
			d.prompt.Printf("error: %v\n", err)
		}
	}
}

func (d *dispatcher) menu(context.Context) error {
	w := d.prompt.Out()
	fmt.Fprintln(w, "uLearn agent")
	for _, cmd := range d.commands {
		key := cmd.key
		if key == "" {
			key = " "
		}
		fmt.Fprintf(w, "  %s  %-10s %s\n", key, cmd.aliases[0], cmd.help)
	}
	return nil
}

func (d *dispatcher) start(context.Context) error {
	if d.svc.Running() && !d.prompt.Confirm("The service is running. Restart it?") {
		return nil
	}
	if err := d.svc.Start(); err != nil {
		return err
	}
	d.prompt.Printf("service started\n")
	return nil
}

func (d *dispatcher) stop(context.Context) error {
	if !d.svc.Running() {
		d.prompt.Printf("service not running\n")
		return nil
	}
	d.svc.Stop()
	d.prompt.Printf("service stopped\n")
	return nil
}

// ensureToken offers to enter a token when there is none.
func (d *dispatcher) ensureToken(ctx context.Context) error {
	if d.svc.Status().HasToken {
		return nil
	}
	if !d.prompt.Confirm("No token. Enter one now?") {
		return errNoToken
	}
	if err := d.enterToken(ctx); err != nil {
		return err
	}
	if !d.svc.Status().HasToken {
		return errNoToken
	}
	return nil
}

func (d *dispatcher) checkIn(mode attendance.Mode) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := d.ensureToken(ctx); err != nil {
			return err
		}
		rep, err := d.svc.CheckIn(ctx, mode)
		if err != nil {
			return err
		}
		d.printReport(rep)
		return nil
	}
}

func (d *dispatcher) printReport(rep attendance.Report) {
	if rep.Empty() {
		d.prompt.Printf("nothing to sign (%d courses)\n", rep.Courses)
		return
	}
	for _, line := range []struct {
		label   string
		courses []string
	}{
		{"signed", rep.Signed},
		{"needs code", rep.NeedsCode},
		{"failed", rep.Failed},
	} {
		if len(line.courses) > 0 {
			d.prompt.Printf("%s: %s\n", line.label, strings.Join(line.courses, ", "))
		}
	}
}

func (d *dispatcher) homework(ctx context.Context) error {
	if err := d.ensureToken(ctx); err != nil {
		return err
	}
	unfinished := d.svc.Homework(ctx)
	if len(unfinished) == 0 {
		d.prompt.Printf("no unfinished homework\n")
		return nil
	}
	d.prompt.Printf("unfinished homework:\n")
	for _, hw := range unfinished {
		d.prompt.Printf("  %s\n", hw)
	}
	return nil
}

func (d *dispatcher) verify(ctx context.Context) error {
	if !d.svc.Status().HasToken {
		return errNoToken
	}
	if d.svc.VerifyToken(ctx) {
		d.prompt.Printf("token valid\n")
	} else {
		d.prompt.Printf("token not verified\n")
	}
	return nil
}

func (d *dispatcher) enterToken(ctx context.Context) error {
	token, err := d.prompt.Secret("Enter token: ")
	if err != nil {
		return errors.Wrap(err, "reading token")
	}
	sess, verified, err := d.svc.ReplaceToken(ctx, token)
	if sess.Token == "" {
		return err
	}
	d.prompt.Printf("token: %s\n", sess.MaskedToken())
	if verified {
		d.prompt.Printf("token verified\n")
	} else {
		d.prompt.Printf("token saved but not verified\n")
	}
	return err
}

func (d *dispatcher) signCodes(context.Context) error {
	for {
		codes, err := d.codes.List()
		if err != nil {
			return err
		}
		d.prompt.Printf("sign codes:\n")
		if len(codes) == 0 {
			d.prompt.Printf("  (none)\n")
		}
		for _, name := range inifile.SortedNames(codes) {
			d.prompt.Printf("  %s: %s\n", name, codes[name])
		}

		choice, err := d.prompt.Line("1 add/change, 2 delete, 0 back: ")
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch choice {
		case "1":
			course, _ := d.prompt.Line("Course name: ")
			code, _ := d.prompt.Line("Sign code: ")
			if err = d.codes.Set(course, code); err != nil {
				d.prompt.Printf("error: %v\n", err)
			}
		case "2":
			course, _ := d.prompt.Line("Course name: ")
			deleted, err := d.codes.Delete(course)
			if err != nil {
				return err
			}
			if deleted {
				break
			}
			if suggestion := d.codes.Suggest(course); suggestion != "" {
				d.prompt.Printf("no code for %s, did you mean %s?\n", course, suggestion)
			} else {
				d.prompt.Printf("no code for %s\n", course)
			}
		case "0", "":
			return nil
		default:
			d.prompt.Printf("unknown choice %q\n", choice)
		}
	}
}

func (d *dispatcher) configure(context.Context) error {
	if _, err := shared.SetupWizard(d.prompt, d.config, d.validate, d.translator); err != nil {
		return err
	}
	conf, err := d.reload(d.config.Path())
	if err != nil {
		return err
	}
	d.conf = conf
	d.prompt.Printf("restart the agent to apply the new settings\n")
	return nil
}

func (d *dispatcher) showConfig(context.Context) error {
	w := d.prompt.Out()
	fmt.Fprintf(w, "account:  %s\n", d.conf.Account.Username)
	fmt.Fprintf(w, "password: %s\n", core.MaskSecret(d.conf.Account.Password))
	fmt.Fprintf(w, "location: %s, %s\n", d.conf.Location.Lat, d.conf.Location.Lon)
	if d.conf.Email.MailEnabled() {
		fmt.Fprintf(w, "mail:     %s -> %s\n", d.conf.Email.FromAddr, d.conf.Email.ToAddr)
	} else {
		fmt.Fprintln(w, "mail:     disabled")
	}
	fmt.Fprintf(w, "schedule: check-in every %s, homework daily at %s\n", d.conf.Schedule.Interval, d.conf.Schedule.DailyAt)
	return d.status(context.Background())
}

func (d *dispatcher) status(context.Context) error {
	st := d.svc.Status()
	w := d.prompt.Out()
	if st.HasToken {
		fmt.Fprintf(w, "user:     %s\n", st.User)
	} else {
		fmt.Fprintln(w, "user:     (no token)")
	}
	if st.Running {
		fmt.Fprintln(w, "service:  running")
	} else {
		fmt.Fprintln(w, "service:  stopped")
	}
	if st.LastCheckin != nil {
		fmt.Fprintf(w, "last check-in: %s (%d signed)\n", st.LastCheckin.StartedAt.Local().Format("2006-01-02 15:04:05"), len(st.LastCheckin.Signed))
	}
	if st.LastHomework != nil {
		fmt.Fprintf(w, "last homework scan: %s (%d unfinished)\n", st.LastHomework.At.Local().Format("2006-01-02 15:04:05"), len(st.LastHomework.Unfinished))
	}
	return nil
}

func (d *dispatcher) quit(context.Context) error {
	d.svc.Stop()
	return core.NewShutdownError("quit")
}

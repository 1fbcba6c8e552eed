package main

import (
	"fmt"

	"github.com/trezcool/ulearn/storage/inifile"
)

func (cli *commandLine) signCodes(args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}
	switch args[0] {
	case "list":
		codes, err := cli.codes.List()
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			fmt.Fprintln(cli.out, "  (none)")
			return nil
		}
		for _, name := range inifile.SortedNames(codes) {
			fmt.Fprintf(cli.out, "  %s: %s\n", name, codes[name])
		}
		return nil
	case "set":
		setCmd := newFlagSet("codes set")
		course := setCmd.String("course", "", "The course name.")
		code := setCmd.String("code", "", "The sign code.")
		if err := setCmd.Parse(args[1:]); err != nil {
			return err
		}
		if *course == "" || *code == "" {
			setCmd.Usage()
			return errHelp
		}
		if err := cli.codes.Set(*course, *code); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "saved")
		return nil
	case "delete":
		delCmd := newFlagSet("codes delete")
		course := delCmd.String("course", "", "The course name.")
		if err := delCmd.Parse(args[1:]); err != nil {
			return err
		}
		if *course == "" {
			delCmd.Usage()
			return errHelp
		}
		deleted, err := cli.codes.Delete(*course)
		if err != nil {
			return err
		}
		switch suggestion := cli.codes.Suggest(*course); {
		case deleted:
			fmt.Fprintln(cli.out, "deleted")
		case suggestion != "":
			fmt.Fprintf(cli.out, "no code for %s, did you mean %s?\n", *course, suggestion)
		default:
			fmt.Fprintf(cli.out, "no code for %s\n", *course)
		}
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}

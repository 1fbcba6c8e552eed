package main

import "github.com/trezcool/ulearn/storage/database"

var gooseRunFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return database.ErrNoDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(cli.db, cli.engine, args[0], arguments...)
}

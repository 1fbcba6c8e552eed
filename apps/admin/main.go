package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/trezcool/ulearn/apps/shared"
)

func main() {
	configPath := flag.String("config", "config.ini", "Path of the configuration file.")
	flag.Parse()

	app, err := shared.NewApp(*configPath, "ADMIN : ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var db *sql.DB
	if app.DB != nil {
		db = app.DB.DB
	}

	// start CLI
	cli := commandLine{
		db:         db,
		engine:     app.Conf.Database.Engine,
		config:     app.Config,
		codes:      app.Codes,
		history:    app.History,
		sessions:   app.Sessions,
		courses:    app.Courses,
		validate:   app.Validate,
		translator: app.Translator,
		prompt:     shared.NewPrompt(os.Stdin, os.Stdout, readSecret),
		out:        os.Stdout,
	}
	err = cli.run(append([]string{"admin"}, flag.Args()...))
	app.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

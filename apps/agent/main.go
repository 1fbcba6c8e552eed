package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	echoapi "github.com/trezcool/ulearn/apps/agent/echo"
	"github.com/trezcool/ulearn/apps/shared"
	"github.com/trezcool/ulearn/core/agent"
	"github.com/trezcool/ulearn/core/attendance"
	"github.com/trezcool/ulearn/core/homework"
	"github.com/trezcool/ulearn/core/schedule"
)

func main() {
	configPath := flag.String("config", "config.ini", "Path of the configuration file.")
	headless := flag.Bool("headless", false, "Run the scheduled service until interrupted, without the menu.")
	flag.Parse()

	if err := run(*configPath, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, headless bool) (err error) {
	// =========================================================================
	// Set up Dependencies

	app, err := shared.NewApp(configPath, "AGENT : ")
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.Logger

	prompt := shared.NewPrompt(os.Stdin, os.Stdout, func() ([]byte, error) {
		return term.ReadPassword(int(syscall.Stdin))
	})

	engine, err := attendance.NewEngine(attendance.Deps{
		Resolver:  app.Resolver,
		Endpoints: app.Endpoints,
		Courses:   app.Courses,
		Sessions:  app.Sessions,
		Location:  app.Conf.Location,
		Codes:     app.Codes,
		Prompter:  prompt,
		History:   app.History,
		Notifier:  app.Notifier,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	monitor, err := homework.NewMonitor(app.Resolver, app.Endpoints, app.Courses, app.Sessions, app.History, app.Notifier, logger)
	if err != nil {
		return err
	}
	svc, err := agent.New(agent.Deps{
		Engine:   engine,
		Monitor:  monitor,
		Sessions: app.Sessions,
		Courses:  app.Courses,
		Schedule: app.Conf.Schedule,
		Clock:    schedule.RealClock,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("agent initializing : version %q", app.Conf.Build))
	defer logger.Info("agent stopped")

	// the scheduler is stopped on every way out, without waiting for in-flight runs
	defer func() {
		svc.Stop()
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("agent panicked: %v", r))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// =========================================================================
	// Start Control API

	var serverErrors <-chan error
	if addr := app.Conf.Server.Address; addr != "" {
		server := echoapi.NewServer(echoapi.ServerDeps{
			Address:        addr,
			APIKeyHash:     app.Conf.Server.APIKeyHash,
			Debug:          app.Conf.Debug,
			DisableReqLogs: !app.Conf.Debug,
			Agent:          svc,
			Logger:         logger,
			Validate:       app.Validate,
			Translator:     app.Translator,
		})
		go server.Start()
		serverErrors = server.Errors()
		logger.Info("control API listening on " + addr)

		defer func() {
			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), app.Conf.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Stop(ctx); err != nil {
				logger.Error(fmt.Sprintf("could not stop control API gracefully: %v", err), err)
			}
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// =========================================================================
	// Headless

	if headless {
		if err = svc.Start(); err != nil {
			return err
		}
		select {
		case err = <-serverErrors:
			return err
		case sig := <-shutdown:
			logger.Info(fmt.Sprintf("%v: start shutdown...", sig))
			return nil
		}
	}

	// =========================================================================
	// Operator menu

	go func() {
		select {
		case sig := <-shutdown:
			logger.Info(fmt.Sprintf("%v: start shutdown...", sig))
		case err := <-serverErrors:
			logger.Error(err.Error(), err)
		}
		svc.Stop()
		app.Close()
		os.Exit(1)
	}()

	d := newDispatcher(&dispatcher{
		svc:        svc,
		conf:       app.Conf,
		config:     app.Config,
		codes:      app.Codes,
		validate:   app.Validate,
		translator: app.Translator,
		prompt:     prompt,
	})
	return d.loop(context.Background())
}

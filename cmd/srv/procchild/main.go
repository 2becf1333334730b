package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/logging/zaplogging"
	"github.com/core-tools/hsu-procmaster/pkg/messaging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Name     string `long:"name" default:"child" description:"Name used in log lines"`
	LogLevel string `long:"log-level" default:"info" description:"Log level: debug, info, warn, error"`
}

// server is the sample workload driven by START and STOP commands
type server struct {
	mutex   sync.Mutex
	running bool
	args    []string
	logger  logging.Logger
}

func (s *server) start(args []string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return fmt.Errorf("already running with %v", s.args)
	}
	s.running = true
	s.args = args
	s.logger.Infof("Server started, args: %v", args)
	return nil
}

func (s *server) stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.logger.Infof("Server stopped")
	return nil
}

func main() {
	var opts flagOptions
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := zaplogging.NewZapLogger(opts.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	logger := logging.NewLogger(fmt.Sprintf("module: %s , ", opts.Name), zapLogger.LogFuncs())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &server{logger: logger}
	handler := &messaging.CommandHandler{
		OnStart: srv.start,
		OnStop:  srv.stop,
		Logger:  logger,
	}

	logger.Infof("Waiting for messages on stdin...")

	err = messaging.Listen(ctx, os.Stdin, handler, logger)
	if err != nil {
		logger.Infof("Listener stopped: %v", err)
	}
	_ = srv.stop()
}

package cmd

import (
	"context"

	"crunchy-cli/internal"
	"crunchy-cli/session"
)

// Executor is implemented by every command. PreCheck validates the command's
// own configuration and must not touch the network. Execute does the work
// with the context that runCommand assembled for it.
type Executor interface {
	PreCheck() error
	Execute(ctx context.Context, ec *ExecutionContext) error
}

// BaseExecutor provides the default pre-check, which always succeeds
type BaseExecutor struct{}

func (BaseExecutor) PreCheck() error {
	return nil
}

// confirmer is implemented by commands that would otherwise ask before
// overwriting something
type confirmer interface {
	assumeYes()
}

// sessionConfigurer lets a command adjust the login before it happens
type sessionConfigurer interface {
	configureSession(opts *session.Options)
}

// runCommand drives a command through pre-check, context creation and
// execution. Every failure is logged exactly once.
func runCommand(ctx context.Context, cfg *internal.Config, env *environment, executor Executor) error {
	if cfg.Quiet {
		if c, ok := executor.(confirmer); ok {
			c.assumeYes()
		}
	}

	if err := executor.PreCheck(); err != nil {
		env.logError("Misconfigurations detected: %v", err)
		return &reportedError{err: err}
	}

	ec, err := createContext(ctx, cfg, env, executor)
	if err != nil {
		return env.reportContextError(err)
	}

	shutdown := env.newShutdown()
	shutdown.Install()
	defer shutdown.Stop()

	if err := executor.Execute(ctx, ec); err != nil {
		return env.reportError(err)
	}
	return nil
}

func (e *environment) reportError(err error) error {
	e.logError("An error occurred: %s", internal.TranslateError(err))
	return &reportedError{err: err}
}

// reportContextError logs login and client setup failures as they are,
// their messages already tell the user what to do
func (e *environment) reportContextError(err error) error {
	e.logError("%s", internal.TranslateError(err))
	return &reportedError{err: err}
}

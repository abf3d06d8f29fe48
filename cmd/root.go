package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"crunchy-cli/internal"
	"crunchy-cli/session"
	"crunchy-cli/utils"
)

// environment is what the commands take from the process. Tests replace parts of it.
type environment struct {
	stdout      io.Writer
	logError    func(format string, args ...interface{})
	newManager  func() (*session.Manager, error)
	newShutdown func() *utils.ShutdownHandler

	manager *session.Manager
}

func defaultEnvironment() *environment {
	return &environment{
		stdout:      os.Stdout,
		logError:    internal.LogError,
		newManager:  session.NewManager,
		newShutdown: utils.NewShutdownHandler,
	}
}

// sessionManager creates the session manager on first use
func (e *environment) sessionManager() (*session.Manager, error) {
	if e.manager == nil {
		manager, err := e.newManager()
		if err != nil {
			return nil, &internal.FatalError{Op: "locate session file", Err: err}
		}
		e.manager = manager
	}
	return e.manager, nil
}

// reportedError marks errors that were already logged
type reportedError struct {
	err error
}

func (e *reportedError) Error() string {
	return e.err.Error()
}

func (e *reportedError) Unwrap() error {
	return e.err
}

func newRootCmd(cfg *internal.Config, env *environment) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "crunchy-cli",
		Short:   "Download videos from Crunchyroll",
		Version: "v1.0.0",
		Long: `crunchy-cli is a command line client for Crunchyroll. It logs in with
credentials, anonymously or with a previously stored login and downloads,
archives or searches content.

Examples:
  crunchy-cli --credentials "user@example.com:password" login
  crunchy-cli download https://www.crunchyroll.com/watch/GRDQPM1ZY
  crunchy-cli --anonymous search "darling in the franxx"
  crunchy-cli --proxy socks5://127.0.0.1:1080: archive -a ja-JP -a de-DE https://www.crunchyroll.com/series/GY8VEQ95Y

Environment Variables:
  CRUNCHY_CLI_PROXY        Proxy specification (same format as --proxy)
  CRUNCHY_CLI_USER_AGENT   User agent for every request
  CRUNCHY_CLI_SPEED_LIMIT  Speed limit (e.g., 500KB)
  CRUNCHY_CLI_LANG         Language of metadata and subtitles
  CRUNCHY_CLI_TIMEOUT      HTTP response header timeout in seconds
  CRUNCHY_CLI_THREADS      Default number of transfer threads (1-32)`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfiguration(cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose output")
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", false, "Quiet output. Does not print anything unless it's an error")
	flags.StringVar(&cfg.Lang, "lang", "", "Overwrite the language in which results are returned. Default is your system locale (env: CRUNCHY_CLI_LANG)")
	flags.BoolVar(&cfg.ExperimentalFixes, "experimental-fixes", false, "Enable experimental fixes which may resolve some unexpected errors. Generally not recommended as this flag may crash the program completely")
	flags.StringVar(&cfg.Credentials, "credentials", "", "Login with credentials (email and password). Must be provided as email:password")
	flags.BoolVar(&cfg.Anonymous, "anonymous", false, "Login without an account (you won't be able to access premium content)")
	flags.StringVar(&cfg.Proxy, "proxy", "", "Use a proxy to route all traffic through. Besides specifying a simple url, you can also specify one proxy for api calls and one for all other traffic, separated by a colon: <api proxy>:<transfer proxy> (env: CRUNCHY_CLI_PROXY)")
	flags.StringVar(&cfg.UserAgent, "user-agent", "", "Use custom user agent (env: CRUNCHY_CLI_USER_AGENT)")
	flags.StringVar(&cfg.SpeedLimit, "speed-limit", "", "Maximal speed to download/request (may be a bit off here and there). Must be in format of <number>[B|KB|MB] (env: CRUNCHY_CLI_SPEED_LIMIT)")

	rootCmd.AddCommand(
		newArchiveCmd(cfg, env),
		newDownloadCmd(cfg, env),
		newLoginCmd(cfg, env),
		newSearchCmd(cfg, env),
	)

	return rootCmd
}

// loadConfiguration merges the environment into the flags, validates the
// result and installs the logger with the selected verbosity
func loadConfiguration(cfg *internal.Config) error {
	cfg.LoadFromEnv()
	internal.InitLogger(cfg.Verbosity())

	if err := cfg.ValidateConfig(); err != nil {
		internal.LogError("Misconfigurations detected: %v", err)
		return &reportedError{err: err}
	}

	internal.LogDebug("Configuration loaded: lang=%q, experimental-fixes=%t, anonymous=%t, proxy=%q, speed-limit=%q",
		cfg.Lang, cfg.ExperimentalFixes, cfg.Anonymous, cfg.Proxy, cfg.SpeedLimit)
	return nil
}

// Execute runs the command line and reports whatever error ended it
func Execute() error {
	return execute(os.Args[1:], internal.DefaultConfig(), defaultEnvironment())
}

func execute(args []string, cfg *internal.Config, env *environment) error {
	rootCmd := newRootCmd(cfg, env)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if err == nil {
		return nil
	}

	// cobra's own usage errors have not been logged yet
	var reported *reportedError
	if !errors.As(err, &reported) {
		internal.LogError("%v", err)
	}
	return err
}

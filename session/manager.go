package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"crunchy-cli/crunchyroll"
	"crunchy-cli/internal"
	"crunchy-cli/utils"
)

// State is a step of the login state machine
type State int

const (
	NoMethodSupplied State = iota
	StoredSessionAttempt
	CredentialsAttempt
	AnonymousAttempt
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case NoMethodSupplied:
		return "NoMethodSupplied"
	case StoredSessionAttempt:
		return "StoredSessionAttempt"
	case CredentialsAttempt:
		return "CredentialsAttempt"
	case AnonymousAttempt:
		return "AnonymousAttempt"
	case Authenticated:
		return "Authenticated"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Stored session token types
const (
	TokenTypeRefreshToken = "refresh_token"
	TokenTypeEtpRt        = "etp_rt"
)

// Options carries everything a login needs from the command line
type Options struct {
	Lang              string
	Credentials       string
	Anonymous         bool
	ExperimentalFixes bool
	// PreferredAudioLocale is only set by the download command
	PreferredAudioLocale crunchyroll.Locale
	Client               *http.Client
	// RateLimiter throttles the API client, nil when no speed limit is set
	RateLimiter crunchyroll.Middleware
	Quiet       bool
}

// Manager selects the login method and produces an authenticated session
type Manager struct {
	sessionFile string
	newBuilder  func() *crunchyroll.Builder
	lookupEnv   func(string) (string, bool)
	fileOps     *utils.FileOperations
	state       State
}

// NewManager creates a manager for the per user session file
func NewManager() (*Manager, error) {
	path, err := utils.SessionFilePath()
	if err != nil {
		return nil, err
	}
	return NewManagerWithSessionFile(path), nil
}

// NewManagerWithSessionFile creates a manager that stores its session at path
func NewManagerWithSessionFile(path string) *Manager {
	return &Manager{
		sessionFile: path,
		newBuilder:  crunchyroll.NewBuilder,
		lookupEnv:   os.LookupEnv,
		fileOps:     utils.NewFileOperations(),
		state:       NoMethodSupplied,
	}
}

// UseBuilder replaces the factory for the builder every login starts from,
// e.g. to point the session at other endpoints
func (m *Manager) UseBuilder(newBuilder func() *crunchyroll.Builder) {
	m.newBuilder = newBuilder
}

// State returns the state the last Login ended in
func (m *Manager) State() State {
	return m.state
}

// SessionFile returns the path of the stored session
func (m *Manager) SessionFile() string {
	return m.sessionFile
}

func (m *Manager) transition(state State) {
	internal.LogDebug("Login state %s -> %s", m.state, state)
	m.state = state
}

func (m *Manager) fail(err error) error {
	m.transition(Failed)
	return err
}

// Login resolves the locale and authenticates with exactly one login method:
// --credentials, --anonymous or the stored session when neither is given
func (m *Manager) Login(ctx context.Context, opts Options) (*crunchyroll.Crunchyroll, error) {
	m.state = NoMethodSupplied

	locale, err := m.ResolveLocale(opts.Lang)
	if err != nil {
		return nil, m.fail(err)
	}

	builder := m.newBuilder().
		Locale(locale).
		StabilizationLocales(opts.ExperimentalFixes).
		StabilizationSeasonNumber(opts.ExperimentalFixes)
	if opts.Client != nil {
		builder = builder.Client(opts.Client)
	}
	if opts.PreferredAudioLocale != "" {
		builder = builder.PreferredAudioLocale(opts.PreferredAudioLocale)
	}
	if opts.RateLimiter != nil {
		builder = builder.Middleware(opts.RateLimiter)
	}

	methods := 0
	if opts.Credentials != "" {
		methods++
	}
	if opts.Anonymous {
		methods++
	}
	if methods > 1 {
		return nil, m.fail(internal.NewAuthError(internal.AuthMultipleMethods,
			"Please use only one login method ('--credentials' or '--anonymous')"))
	}

	spinner := utils.StartSpinner("Logging in", opts.Quiet)
	var session *crunchyroll.Crunchyroll
	switch {
	case opts.Credentials != "":
		m.transition(CredentialsAttempt)
		session, err = m.loginWithCredentials(ctx, builder, opts.Credentials)
	case opts.Anonymous:
		m.transition(AnonymousAttempt)
		session, err = builder.LoginAnonymously(ctx)
	default:
		session, err = m.loginWithStoredSession(ctx, builder)
	}
	spinner.Stop()

	if err != nil {
		return nil, m.fail(err)
	}

	m.transition(Authenticated)
	internal.LogInfo("Logged in")
	internal.LogDebug("Access token valid until %s", session.AccessTokenExpiry().Format(time.RFC3339))
	return session, nil
}

func (m *Manager) loginWithCredentials(ctx context.Context, builder *crunchyroll.Builder, credentials string) (*crunchyroll.Crunchyroll, error) {
	email, password, ok := strings.Cut(credentials, ":")
	if !ok {
		return nil, internal.NewAuthError(internal.AuthInvalidCredentials,
			"Invalid credentials format. Please provide your credentials as email:password")
	}
	return builder.LoginWithCredentials(ctx, email, password)
}

func (m *Manager) loginWithStoredSession(ctx context.Context, builder *crunchyroll.Builder) (*crunchyroll.Crunchyroll, error) {
	content, err := os.ReadFile(m.sessionFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, internal.NewAuthError(internal.AuthNoMethod,
			"Please use a login method ('--credentials' or '--anonymous')")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stored session: %w", err)
	}

	m.transition(StoredSessionAttempt)
	raw := strings.TrimRight(string(content), "\r\n")

	tokenType, token, ok := strings.Cut(raw, ":")
	if ok {
		switch tokenType {
		case TokenTypeRefreshToken:
			session, err := builder.LoginWithRefreshToken(ctx, token)
			if err != nil {
				var crunchyErr *internal.CrunchyError
				if errors.As(err, &crunchyErr) && crunchyErr.IsInvalidGrant() {
					return nil, &internal.AuthError{
						Reason:  internal.AuthStoredExpired,
						Message: "The stored login is expired, please login again",
						Err:     err,
					}
				}
				return nil, err
			}
			return session, nil
		case TokenTypeEtpRt:
			return nil, internal.NewAuthError(internal.AuthStoredUnsupported,
				"The stored login method (etp-rt) isn't supported anymore. Please login again using your credentials")
		}
	}

	// Unknown token types are not guessed at, the file has to be recreated with `login`
	return nil, internal.NewAuthError(internal.AuthStoredUnreadable,
		fmt.Sprintf("Could not read stored session ('%s')", raw))
}

// Save persists the refresh token of session so later invocations can log in without a method
func (m *Manager) Save(session *crunchyroll.Crunchyroll) error {
	token := session.SessionToken()
	if token.Kind != crunchyroll.TokenRefresh {
		return internal.NewAuthError(internal.AuthNotSavable, "Anonymous login cannot be saved")
	}

	if err := m.fileOps.EnsureDir(m.sessionFile); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.sessionFile, []byte(TokenTypeRefreshToken+":"+token.Value), 0600); err != nil {
		return fmt.Errorf("failed to write stored session: %w", err)
	}

	internal.LogInfo("Stored login at %s", m.sessionFile)
	return nil
}

// Remove deletes the stored session. A missing file is not an error.
func (m *Manager) Remove() error {
	err := os.Remove(m.sessionFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stored session: %w", err)
	}
	if err == nil {
		internal.LogInfo("Removed stored login")
	}
	return nil
}

package cmd

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"crunchy-cli/crunchyroll"
	"crunchy-cli/internal"
	"crunchy-cli/session"
	"crunchy-cli/utils"
)

// ExecutionContext is assembled once per invocation and handed to the
// command's Execute. It is read only afterwards.
type ExecutionContext struct {
	session     *crunchyroll.Crunchyroll
	client      *http.Client
	rateLimiter *utils.RateLimiterService
}

// Session returns the authenticated session
func (c *ExecutionContext) Session() *crunchyroll.Crunchyroll {
	return c.session
}

// Client returns the transfer client. It is already throttled when a speed limit is set.
func (c *ExecutionContext) Client() *http.Client {
	return c.client
}

// RateLimiter returns the limiter of the transfer client, nil without speed limit
func (c *ExecutionContext) RateLimiter() *utils.RateLimiterService {
	return c.rateLimiter
}

// createContext builds the API and the transfer client with their own proxy
// and limiter, then logs in with the API client
func createContext(ctx context.Context, cfg *internal.Config, env *environment, executor Executor) (*ExecutionContext, error) {
	proxies, err := utils.ParseProxySpec(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	speedLimit, err := utils.ParseSpeedLimit(cfg.SpeedLimit)
	if err != nil {
		return nil, err
	}

	apiClient, err := newClient(cfg, proxies.API)
	if err != nil {
		return nil, &internal.FatalError{Op: "create api client", Err: err}
	}
	transferClient, err := newClient(cfg, proxies.Transfer)
	if err != nil {
		return nil, &internal.FatalError{Op: "create transfer client", Err: err}
	}

	manager, err := env.sessionManager()
	if err != nil {
		return nil, err
	}

	opts := session.Options{
		Lang:              cfg.Lang,
		Credentials:       cfg.Credentials,
		Anonymous:         cfg.Anonymous,
		ExperimentalFixes: cfg.ExperimentalFixes,
		Client:            apiClient,
		Quiet:             cfg.Quiet,
	}

	ec := &ExecutionContext{client: transferClient}
	if speedLimit > 0 {
		internal.LogDebug("Limiting api and transfer traffic to %s each", utils.FormatSpeedLimit(speedLimit))
		opts.RateLimiter = utils.NewRateLimiterService(speedLimit, apiClient)
		ec.rateLimiter = utils.NewRateLimiterService(speedLimit, transferClient)
		ec.client = ec.rateLimiter.Client()
	}

	if configurer, ok := executor.(sessionConfigurer); ok {
		configurer.configureSession(&opts)
	}

	crunchy, err := manager.Login(ctx, opts)
	if err != nil {
		return nil, err
	}
	ec.session = crunchy

	return ec, nil
}

func newClient(cfg *internal.Config, proxy *url.URL) (*http.Client, error) {
	opts := utils.DefaultClientOptions()
	opts.Proxy = proxy
	opts.UserAgent = cfg.UserAgent
	if cfg.Timeout > 0 {
		opts.Timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return utils.NewHTTPClient(opts)
}

package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/config"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultTimeout = 30 * time.Second
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
	errInvalidCurrency  = errors.New("stripe currency must be a three letter ISO code")
)

// keyPrefixes lists the secret and restricted key prefixes accepted per env.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

// Client holds the Stripe API client together with the settings every charge
// and webhook needs.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	currency      string
}

// NewClient validates the key against the configured environment and builds
// an API client with its own HTTP timeout and retry budget.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	if _, ok := keyPrefixes[env]; !ok {
		return nil, errInvalidStripeEnv
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if !hasAnyPrefix(apiKey, keyPrefixes[env]) {
		return nil, fmt.Errorf("stripe environment %q requires a key starting with one of %v", env, keyPrefixes[env])
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	if len(currency) != 3 {
		return nil, errInvalidCurrency
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(max(cfg.MaxNetworkRetries, 0)),
	}
	if logg != nil {
		backendCfg.LeveledLogger = &leveledLogger{ctx: ctx, logg: logg}
	}
	backends := stripe.NewBackendsWithConfig(backendCfg)
	api := stripe.NewClient(apiKey, stripe.WithBackends(backends))
	// The resource packages (session, coupon, paymentintent) read the
	// package-level key and backend.
	stripe.Key = apiKey
	stripe.SetBackend(stripe.APIBackend, backends.API)

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env": env,
			"currency":   currency,
			"timeout":    timeout.String(),
		}), "stripe client initialized")
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
		currency:      currency,
	}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// Currency returns the lower-case ISO currency used for every charge.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// leveledLogger routes stripe-go's internal logging into the service logger.
// Debug and info output is dropped to keep request bodies out of the logs.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l *leveledLogger) Debugf(string, ...any) {}

func (l *leveledLogger) Infof(string, ...any) {}

func (l *leveledLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.logg.WithField(l.ctx, "component", "stripe"), fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.logg.WithField(l.ctx, "component", "stripe"), "stripe client error", fmt.Errorf(format, v...))
}

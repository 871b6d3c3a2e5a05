// Package creds supplies Yandex account credentials and SMS activation
// codes. The automated provider buys a phone number through the 365sms
// text-protocol API; the dev provider uses a configured test account and
// reads the code interactively.
package creds

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Credentials is the login material for one authentication attempt.
// ActivationID ties the phone number to a pending SMS activation.
type Credentials struct {
	Login        string
	Password     string
	ActivationID string
}

// Provider supplies credentials and activation codes. GetSMSCode invokes
// retry when the service judges a resend is warranted (code still pending).
type Provider interface {
	GetCredentials(ctx context.Context) (Credentials, error)
	GetSMSCode(ctx context.Context, activationID string, retry func()) (string, error)
}

// ErrCodeTimeout reports that no SMS code arrived for the purchased number
// within the total deadline; the caller should abandon the number.
var ErrCodeTimeout = errors.New("creds: sms code not received in time")

// SMS365 buys numbers and polls activation codes from 365sms.
//
// The API is a plain-text protocol: getNumber answers
// "ACCESS_NUMBER:<id>:<number>", "NO_NUMBERS", "NO_BALANCE" or
// "WRONG_SERVICE"; getStatus answers "STATUS_OK:<code>" or
// "STATUS_WAIT_CODE".
type SMS365 struct {
	apiKey       string
	password     string // account password to pair with the bought number
	baseURL      string
	numberWait   time.Duration
	codeWait     time.Duration
	codeDeadline time.Duration
	client       *http.Client
	sleep        func(ctx context.Context, d time.Duration)
	logger       *slog.Logger
}

// SMS365Option configures the provider.
type SMS365Option func(*SMS365)

// WithSMSBaseURL overrides the API endpoint (tests).
func WithSMSBaseURL(u string) SMS365Option {
	return func(p *SMS365) { p.baseURL = u }
}

// WithSMSHTTPClient replaces the HTTP client.
func WithSMSHTTPClient(c *http.Client) SMS365Option {
	return func(p *SMS365) { p.client = c }
}

// WithSMSWaits sets the polling pauses and the total code deadline.
func WithSMSWaits(numberWait, codeWait, codeDeadline time.Duration) SMS365Option {
	return func(p *SMS365) {
		p.numberWait = numberWait
		p.codeWait = codeWait
		p.codeDeadline = codeDeadline
	}
}

// WithSMSSleep replaces the pause primitive (tests).
func WithSMSSleep(fn func(ctx context.Context, d time.Duration)) SMS365Option {
	return func(p *SMS365) { p.sleep = fn }
}

// WithSMSLogger sets a custom logger.
func WithSMSLogger(l *slog.Logger) SMS365Option {
	return func(p *SMS365) { p.logger = l }
}

// NewSMS365 creates the automated provider.
func NewSMS365(apiKey, accountPassword string, opts ...SMS365Option) *SMS365 {
	p := &SMS365{
		apiKey:       apiKey,
		password:     accountPassword,
		baseURL:      "https://365sms.ru/stubs/handler_api.php",
		numberWait:   5 * time.Second,
		codeWait:     90 * time.Second,
		codeDeadline: 185 * time.Second,
		client:       &http.Client{Timeout: 30 * time.Second},
		sleep:        sleepCtx,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// GetCredentials buys a phone number, retrying while the pool is empty.
// The loop is unbounded apart from context cancellation: number shortage is
// expected to clear, while balance and configuration errors are terminal.
func (p *SMS365) GetCredentials(ctx context.Context) (Credentials, error) {
	p.logger.Info("creds: buying number from 365sms")

	for {
		result, err := p.call(ctx, "action=getNumber&service=ya&operator=any&country=0")
		if err != nil {
			return Credentials{}, err
		}

		switch {
		case strings.HasPrefix(result, "ACCESS_NUMBER"):
			parts := strings.SplitN(result, ":", 3)
			if len(parts) != 3 {
				return Credentials{}, fmt.Errorf("creds: malformed response %q", result)
			}
			p.logger.Info("creds: number acquired",
				"number", parts[2], "activation_id", parts[1])
			return Credentials{
				Login:        parts[2],
				Password:     p.password,
				ActivationID: parts[1],
			}, nil

		case result == "NO_NUMBERS":
			p.logger.Info("creds: no numbers available, retrying",
				"wait", p.numberWait)
			p.sleep(ctx, p.numberWait)
			if err := ctx.Err(); err != nil {
				return Credentials{}, err
			}

		case result == "NO_BALANCE":
			return Credentials{}, fmt.Errorf("creds: insufficient balance")

		case result == "WRONG_SERVICE":
			return Credentials{}, fmt.Errorf("creds: wrong service identifier")

		default:
			return Credentials{}, fmt.Errorf("creds: unexpected response %q", result)
		}
	}
}

// GetSMSCode polls the activation status until a code arrives or the total
// deadline passes. While the code is pending it invokes retry so the caller
// can press the resend control.
func (p *SMS365) GetSMSCode(ctx context.Context, activationID string, retry func()) (string, error) {
	start := time.Now()
	for {
		// The SMS has just been requested; give it time to arrive.
		p.sleep(ctx, p.codeWait)
		if err := ctx.Err(); err != nil {
			return "", err
		}

		result, err := p.call(ctx, "action=getStatus&id="+activationID)
		if err != nil {
			return "", err
		}

		switch {
		case strings.HasPrefix(result, "STATUS_OK"):
			parts := strings.SplitN(result, ":", 2)
			if len(parts) != 2 {
				return "", fmt.Errorf("creds: malformed status %q", result)
			}
			p.logger.Info("creds: activation code received")
			return parts[1], nil

		case result == "STATUS_WAIT_CODE":
			p.logger.Info("creds: code still pending, requesting resend")
			if retry != nil {
				retry()
			}

		default:
			return "", fmt.Errorf("creds: unexpected status %q", result)
		}

		if time.Since(start) > p.codeDeadline {
			p.logger.Error("creds: code deadline exceeded",
				"deadline", p.codeDeadline)
			return "", ErrCodeTimeout
		}
	}
}

func (p *SMS365) call(ctx context.Context, query string) (string, error) {
	u := fmt.Sprintf("%s?api_key=%s&%s", p.baseURL, p.apiKey, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creds: new request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("creds: request 365sms: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("creds: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("creds: status %d: %s", resp.StatusCode, body)
	}
	return strings.TrimSpace(string(body)), nil
}

// Dev returns configured test-account credentials and reads the activation
// code from in (normally stdin).
type Dev struct {
	Login    string
	Password string
	In       io.Reader
	Out      io.Writer
	Logger   *slog.Logger
}

func (d *Dev) GetCredentials(ctx context.Context) (Credentials, error) {
	d.logger().Info("creds: using development credentials")
	return Credentials{
		Login:        d.Login,
		Password:     d.Password,
		ActivationID: "IS_DEV",
	}, nil
}

func (d *Dev) GetSMSCode(ctx context.Context, activationID string, retry func()) (string, error) {
	if d.Out != nil {
		fmt.Fprint(d.Out, "Код активации: ")
	}
	scanner := bufio.NewScanner(d.In)
	if !scanner.Scan() {
		return "", fmt.Errorf("creds: no code entered")
	}
	code := strings.TrimSpace(scanner.Text())
	if code == "" {
		return "", fmt.Errorf("creds: empty code entered")
	}
	return code, nil
}

func (d *Dev) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

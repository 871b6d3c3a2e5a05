package yandex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/Andromeda-12/statify/internal/browser"
	"github.com/Andromeda-12/statify/internal/config"
	"github.com/Andromeda-12/statify/internal/creds"
)

const (
	passportURL = "https://passport.yandex.ru/auth"
	profileURL  = "https://id.yandex.ru/"

	selLoginField    = `#passp-field-login`
	selPasswordField = `#passp-field-passwd`
	selPhoneCode     = `#passp-field-phoneCode`
	selResendCode    = `button[data-t="button:pseudo"]`
	selFirstName     = `#passp-field-firstname`
	selLastName      = `#passp-field-lastname`
	selSubmit        = `button[type="submit"]`
	selProfileAvatar = `[data-testid="profile-card-avatar"]`
)

// Authenticator drives the passport login flow. In production it registers
// fresh accounts with numbers bought from the SMS provider; in dev mode it
// logs into a fixed test account with the code entered by the operator.
type Authenticator struct {
	mgr      *browser.Manager
	provider creds.Provider
	account  config.AccountConfig
	dev      bool
	sleep    func(ctx context.Context, d time.Duration)
	logger   *slog.Logger
}

// AuthOption configures an Authenticator.
type AuthOption func(*Authenticator)

// WithAuthLogger sets a custom logger.
func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(a *Authenticator) { a.logger = l }
}

// WithAuthSleep replaces the pause primitive (tests).
func WithAuthSleep(fn func(ctx context.Context, d time.Duration)) AuthOption {
	return func(a *Authenticator) { a.sleep = fn }
}

// NewAuthenticator creates the login driver.
func NewAuthenticator(mgr *browser.Manager, provider creds.Provider, account config.AccountConfig, dev bool, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		mgr:      mgr,
		provider: provider,
		account:  account,
		dev:      dev,
		sleep:    sleepCtx,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Login produces an authenticated session on the maps page.
//
// The loop is deliberately unbounded: number or code acquisition failures
// are expected to clear eventually, or require operator intervention — only
// context cancellation stops the retries. Each failed attempt restarts the
// browser so the next one begins from a clean profile.
func (a *Authenticator) Login(ctx context.Context) (*browser.Session, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a.logger.Info("auth: obtaining credentials")
		cr, err := a.provider.GetCredentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("auth: get credentials: %w", err)
		}

		if err := a.mgr.Restart(ctx); err != nil {
			return nil, fmt.Errorf("auth: restart browser: %w", err)
		}
		session, err := a.mgr.NewSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("auth: new session: %w", err)
		}

		ok, err := a.attemptLogin(ctx, session, cr)
		if err != nil {
			return nil, err
		}
		if ok {
			a.logger.Info("auth: logged in", "login", cr.Login)
			if err := session.Navigate(ctx, MapsURL); err != nil {
				return nil, err
			}
			return session, nil
		}

		a.logger.Warn("auth: login failed, retrying with fresh credentials")
	}
}

func (a *Authenticator) attemptLogin(ctx context.Context, s *browser.Session, cr creds.Credentials) (bool, error) {
	if a.dev && cr.Login == "" {
		// No test account configured: a manually prepared browser profile
		// is assumed, go straight to the maps page.
		return true, nil
	}

	if err := s.Navigate(ctx, passportURL); err != nil {
		return false, err
	}

	loginField, err := s.WaitElement(ctx, selLoginField)
	if err != nil {
		return false, err
	}
	if err := s.Input(ctx, loginField, cr.Login); err != nil {
		return false, err
	}
	a.logger.Info("auth: login entered")

	if a.dev {
		return a.loginWithPassword(ctx, s, cr.Password)
	}
	return a.loginWithSMS(ctx, s, cr)
}

func (a *Authenticator) loginWithPassword(ctx context.Context, s *browser.Session, password string) (bool, error) {
	field, err := s.WaitElement(ctx, selPasswordField)
	if err != nil {
		return false, err
	}
	if err := s.Input(ctx, field, password); err != nil {
		return false, err
	}
	a.sleep(ctx, 2*time.Second)
	return a.verifyLogin(ctx, s)
}

func (a *Authenticator) loginWithSMS(ctx context.Context, s *browser.Session, cr creds.Credentials) (bool, error) {
	code, err := a.provider.GetSMSCode(ctx, cr.ActivationID, func() {
		a.resendCode(ctx, s)
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		// No code for this number; abandon it and let the outer loop buy
		// a fresh one.
		a.logger.Warn("auth: sms code not received", "error", err)
		return false, nil
	}

	codeField, err := s.WaitElement(ctx, selPhoneCode)
	if err != nil {
		return false, err
	}
	if err := s.Input(ctx, codeField, code); err != nil {
		return false, err
	}
	a.logger.Info("auth: sms code entered")

	a.completeRegistration(ctx, s)
	return a.verifyLogin(ctx, s)
}

// completeRegistration fills the name form when a new account is being
// created from the bought number. Absent form means an existing account.
func (a *Authenticator) completeRegistration(ctx context.Context, s *browser.Session) {
	first, err := s.WaitElementFor(ctx, selFirstName, 10*time.Second)
	if err != nil {
		return
	}
	if err := first.Input(a.account.FirstName); err != nil {
		a.logger.Warn("auth: first name input failed", "error", err)
		return
	}
	last, err := s.WaitElementFor(ctx, selLastName, 5*time.Second)
	if err != nil {
		return
	}
	if err := last.Input(a.account.LastName); err != nil {
		a.logger.Warn("auth: last name input failed", "error", err)
		return
	}
	submit, err := s.WaitElementFor(ctx, selSubmit, 5*time.Second)
	if err != nil {
		return
	}
	if err := s.MoveAndClick(ctx, submit); err != nil {
		a.logger.Warn("auth: registration submit failed", "error", err)
	}
	a.logger.Info("auth: registration form completed")
}

func (a *Authenticator) resendCode(ctx context.Context, s *browser.Session) {
	btn, err := s.WaitElementFor(ctx, selResendCode, 5*time.Second)
	if err != nil {
		a.logger.Warn("auth: resend control not found")
		return
	}
	if err := s.MoveAndClick(ctx, btn); err != nil {
		a.logger.Warn("auth: resend click failed", "error", err)
		return
	}
	a.logger.Info("auth: sms resend requested")
}

func (a *Authenticator) verifyLogin(ctx context.Context, s *browser.Session) (bool, error) {
	if err := s.Navigate(ctx, profileURL); err != nil {
		return false, err
	}
	if _, err := s.WaitElementFor(ctx, selProfileAvatar, 15*time.Second); err != nil {
		a.logger.Warn("auth: profile avatar not found, login not verified")
		return false, nil
	}
	return true, nil
}

// SaveCookies persists the current session cookies so a dev login can be
// reused across runs.
func (a *Authenticator) SaveCookies(s *browser.Session) error {
	cookies, err := s.Cookies()
	if err != nil {
		return err
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("auth: marshal cookies: %w", err)
	}
	if err := os.WriteFile(a.account.CookieFile, data, 0o600); err != nil {
		return fmt.Errorf("auth: write cookie file: %w", err)
	}
	return nil
}

// RestoreCookies loads saved cookies into the browser and verifies the
// session is still authenticated.
func (a *Authenticator) RestoreCookies(ctx context.Context, s *browser.Session) (bool, error) {
	data, err := os.ReadFile(a.account.CookieFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("auth: read cookie file: %w", err)
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return false, fmt.Errorf("auth: parse cookie file: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	if err := s.SetCookies(params); err != nil {
		return false, err
	}

	if err := s.Navigate(ctx, profileURL); err != nil {
		return false, err
	}
	return a.verifyLogin(ctx, s)
}

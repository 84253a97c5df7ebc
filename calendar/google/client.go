package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/guilherme-santos/compasssync/internal"
)

const Platform = "google"

const (
	defaultSleep      = 5 * time.Second
	defaultMaxRetries = 5
	callbackPath      = "/oauth2/callback"
)

type Client struct {
	oauthCfg *oauth2.Config
	logger   *slog.Logger
	// endpoint overrides the API base path.
	endpoint string
	sleep    time.Duration

	// RedirectAddr is where Login waits for the OAuth callback.
	RedirectAddr string
	// Out receives the login link.
	Out        io.Writer
	MaxRetries int
}

var _ internal.Provider = (*Client)(nil)

func NewClient(credJSON []byte, logger *slog.Logger) (*Client, error) {
	oauthCfg, err := google.ConfigFromJSON(credJSON, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %v", err)
	}
	if logger == nil {
		logger = internal.DiscardLogger()
	}
	return &Client{
		oauthCfg:     oauthCfg,
		logger:       logger.With(slog.String("provider", Platform)),
		sleep:        defaultSleep,
		RedirectAddr: "127.0.0.1:8085",
		Out:          os.Stdout,
		MaxRetries:   defaultMaxRetries,
	}, nil
}

// NewClientFromFile reads the OAuth client credentials from path.
func NewClientFromFile(path string, logger *slog.Logger) (*Client, error) {
	credJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("google: reading credentials file: %v", err)
	}
	return NewClient(credJSON, logger)
}

// Login runs the OAuth consent flow and returns the token to store as the
// user's auth.
func (c *Client) Login(ctx context.Context) ([]byte, error) {
	cfg := *c.oauthCfg
	cfg.RedirectURL = "http://" + c.RedirectAddr + callbackPath

	state := uuid.NewString()
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(c.Out, "\nGo to the following link in your browser\n%s\n", authURL)

	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    c.RedirectAddr,
		Handler: mux,
	}

	var (
		token   *oauth2.Token
		authErr error
	)

	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			go server.Shutdown(context.WithoutCancel(ctx))
		}()

		query := req.URL.Query()
		if query.Get("state") != state {
			authErr = errors.New("oauth link is not valid")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		token, authErr = cfg.Exchange(ctx, query.Get("code"))
		if authErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "Unable to retrieve token:", authErr)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "All good, you can close this window!")
	})

	serverCh := make(chan struct{})
	var svrErr error
	go func() {
		svrErr = server.ListenAndServe()
		close(serverCh)
	}()

	select {
	case <-serverCh:
	case <-ctx.Done():
		server.Close()
		return nil, ctx.Err()
	}

	if svrErr != nil && svrErr != http.ErrServerClosed {
		return nil, svrErr
	}
	if authErr != nil {
		return nil, authErr
	}
	return json.Marshal(token)
}

func (c *Client) calendarSvc(ctx context.Context, user *internal.User) (*calendar.Service, error) {
	var tok *oauth2.Token
	if err := json.Unmarshal([]byte(user.Auth), &tok); err != nil || tok == nil {
		return nil, internal.E(internal.ErrProvider, "google auth", fmt.Sprintf("user %s has no valid token, run configure again", user), err)
	}
	opts := []option.ClientOption{option.WithHTTPClient(c.oauthCfg.Client(ctx, tok))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

// retry runs fn until it succeeds, fails with an error other than a rate
// limit, or runs out of attempts.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !shouldRetry(err) || attempt >= c.MaxRetries {
			return classify(op, err)
		}
		c.logger.Debug("Rate limited, retrying", slog.String("op", op), slog.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.sleep):
		}
	}
}

// classify turns an API failure into the error taxonomy.
func classify(op string, err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return internal.ProviderErr(op, err)
	}
	switch gErr.Code {
	case http.StatusNotFound:
		return internal.E(internal.ErrNotFound, op, gErr.Message, err)
	case http.StatusGone:
		return internal.E(internal.ErrSyncTokenExpired, op, gErr.Message, err)
	case http.StatusUnauthorized:
		return internal.E(internal.ErrProvider, op, "authorization expired or revoked", err)
	}
	return internal.E(internal.ErrProvider, op, gErr.Message, err)
}

func shouldRetry(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		return true
	}
	return errIsReason(err, "rateLimitExceeded") || errIsReason(err, "userRateLimitExceeded")
}

func alreadyDeleted(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusGone {
		return true
	}
	return errIsReason(err, "deleted")
}

func errIsReason(err error, reason string) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}

	for _, err := range gErr.Errors {
		switch err.Reason {
		case reason:
			return true
		}
	}
	return false
}

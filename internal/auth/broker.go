package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single grant request.
const DefaultTimeout = 10 * time.Second

// Grant is an OAuth2 grant type.
type Grant string

const (
	GrantPassword Grant = "password"
	GrantRefresh  Grant = "refresh_token"
)

// Error reports a failed grant. StatusCode and Body are set when the
// endpoint answered with a non-2xx response.
type Error struct {
	Grant      Grant
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth: %s grant rejected (HTTP %d): %s", e.Grant, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("auth: %s grant failed: %v", e.Grant, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recorder receives grant attempt counts. *metrics.Metrics satisfies it.
type Recorder interface {
	GrantAttempt(grant string, ok bool)
}

// Config configures a Broker.
type Config struct {
	TokenURL string
	ClientID string
	Username string
	Password string
	// Store holds the credential between calls. Defaults to a MemoryStore.
	Store Store
	// HTTPClient performs the token requests. Defaults to a client with
	// DefaultTimeout.
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     zerolog.Logger
	Metrics    Recorder
}

// Broker decides whether the stored credential is usable or negotiates a
// new one.
type Broker struct {
	store   Store
	client  *http.Client
	oauth   oauth2.Config
	user    string
	pass    string
	now     func() time.Time
	log     zerolog.Logger
	metrics Recorder
}

// NewBroker creates a Broker.
func NewBroker(cfg Config) *Broker {
	b := &Broker{
		store:  cfg.Store,
		client: cfg.HTTPClient,
		oauth: oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		user:    cfg.Username,
		pass:    cfg.Password,
		now:     cfg.Now,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
	if b.store == nil {
		b.store = NewMemoryStore()
	}
	if b.client == nil {
		b.client = &http.Client{Timeout: DefaultTimeout}
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// EnsureValid returns a usable credential, negotiating a new one if the
// stored credential is missing or about to expire.
//
// Without any stored token only the password grant is tried. With a refresh
// token the refresh grant is tried first and a failure falls through to one
// password grant, whose result is returned as is.
func (b *Broker) EnsureValid(ctx context.Context) (Credential, error) {
	cur := b.store.Get()
	if cur.Valid(b.now()) {
		return cur, nil
	}

	switch {
	case cur.AccessToken == "" && cur.RefreshToken == "":
		return b.grant(ctx, GrantPassword, "")
	case cur.RefreshToken != "":
		cred, err := b.grant(ctx, GrantRefresh, cur.RefreshToken)
		if err == nil {
			return cred, nil
		}
	}

	return b.grant(ctx, GrantPassword, "")
}

func (b *Broker) grant(ctx context.Context, g Grant, refreshToken string) (Credential, error) {
	b.log.Debug().Str("grant", string(g)).Msg("performing authorisation")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)

	var (
		tok *oauth2.Token
		err error
	)
	switch g {
	case GrantRefresh:
		tok, err = b.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	default:
		tok, err = b.oauth.PasswordCredentialsToken(ctx, b.user, b.pass)
	}
	if b.metrics != nil {
		b.metrics.GrantAttempt(string(g), err == nil)
	}

	if err != nil {
		b.store.Clear()
		aerr := newError(g, err)
		b.log.Error().Err(aerr).Str("grant", string(g)).Msg("authorisation failed")
		return Credential{}, aerr
	}

	cred := credentialFromToken(tok, b.now())
	b.store.Set(cred)
	b.log.Debug().Str("grant", string(g)).Int("expires_in", cred.ExpiresIn).Msg("authorisation succeeded")
	return cred, nil
}

func newError(g Grant, err error) *Error {
	e := &Error{Grant: g, Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			e.StatusCode = re.Response.StatusCode
		}
		e.Body = string(re.Body)
	}
	return e
}

func credentialFromToken(tok *oauth2.Token, issuedAt time.Time) Credential {
	cred := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Provider:     extraString(tok, "provider"),
		UserID:       extraString(tok, "user_id"),
		Scope:        extraString(tok, "scope"),
		IssuedAt:     issuedAt,
	}
	if n, ok := extraInt(tok, "expires_in"); ok {
		cred.ExpiresIn = n
	} else if !tok.Expiry.IsZero() {
		cred.ExpiresIn = int(tok.Expiry.Sub(issuedAt).Seconds())
	}
	return cred
}

func extraString(tok *oauth2.Token, key string) string {
	switch v := tok.Extra(key).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func extraInt(tok *oauth2.Token, key string) (int, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int(v), true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

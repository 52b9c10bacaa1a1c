package requestor

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/go-errors/errors"

	irma "github.com/privacybydesign/irmarequestor"
)

// Client manages IRMA sessions at an IRMA server on behalf of a requestor.
// It holds only static configuration, and is safe for concurrent use.
type Client struct {
	url       *url.URL
	auth      authentication
	transport *irma.HTTPTransport
}

// Builder configures the authentication of a Client.
type Builder struct {
	url  *url.URL
	auth authentication
}

// New returns a client for the IRMA server at the specified URL, without authentication.
func New(serverURL string) (*Client, error) {
	b, err := NewBuilder(serverURL)
	if err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// NewBuilder returns a builder for a client of the IRMA server at the specified URL.
func NewBuilder(serverURL string) (*Builder, error) {
	u, err := parseURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &Builder{url: u}, nil
}

func parseURL(serverURL string) (*url.URL, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, &irma.SessionError{ErrorType: irma.ErrorInvalidURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &irma.SessionError{ErrorType: irma.ErrorInvalidURL, Info: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &irma.SessionError{ErrorType: irma.ErrorInvalidURL, Info: "no host"}
	}
	return u, nil
}

// TokenAuthentication has the client send the token as Authorization header.
func (b *Builder) TokenAuthentication(token string) *Builder {
	b.auth = tokenAuthentication(token)
	return b
}

// HMACAuthentication has the client sign its session requests using HS256 with the specified key.
func (b *Builder) HMACAuthentication(name string, key []byte) *Builder {
	b.auth = hmacAuthentication(name, key)
	return b
}

// RSAAuthentication has the client sign its session requests using RS256 with the specified key.
func (b *Builder) RSAAuthentication(name string, key *rsa.PrivateKey) *Builder {
	b.auth = rsaAuthentication(name, key)
	return b
}

// Build returns the client.
func (b *Builder) Build() *Client {
	transport := irma.NewHTTPTransport(b.url.String())
	if b.auth.method == AuthMethodToken {
		transport.SetHeader("Authorization", string(b.auth.token))
	}
	return &Client{url: b.url, auth: b.auth, transport: transport}
}

// URL returns the URL of the IRMA server.
func (c *Client) URL() string {
	return c.url.String()
}

// AuthMethod returns the way in which the client authenticates itself.
func (c *Client) AuthMethod() AuthMethod {
	return c.auth.Method()
}

// SignRequest returns the JWT that the client would send to the IRMA server to start a session with
// the request. It fails for clients not authenticating with hmac or rsa.
func (c *Client) SignRequest(request *irma.RequestorRequest) (string, error) {
	if !c.auth.jwt() {
		return "", errors.Errorf("authentication method %s does not sign requests", c.auth.Method())
	}
	if err := request.Validate(); err != nil {
		return "", err
	}
	return irma.SignRequestorRequest(request, c.auth.alg, c.auth.key, c.auth.name)
}

// Start starts a session at the IRMA server.
func (c *Client) Start(ctx context.Context, request irma.SessionRequest) (*irma.SessionPackage, error) {
	if request == nil {
		return nil, &irma.SessionError{ErrorType: irma.ErrorInvalidRequest, Info: "no session request"}
	}
	return c.start(ctx, &irma.RequestorRequest{Request: request}, false)
}

// StartExtended starts a session at the IRMA server, including instructions for the server on how
// to execute the session. The format of such requests is less stable than that of the requests
// accepted by Start.
func (c *Client) StartExtended(ctx context.Context, request *irma.RequestorRequest) (*irma.SessionPackage, error) {
	if request == nil {
		return nil, &irma.SessionError{ErrorType: irma.ErrorInvalidRequest, Info: "no session request"}
	}
	return c.start(ctx, request, true)
}

func (c *Client) start(ctx context.Context, request *irma.RequestorRequest, extended bool) (*irma.SessionPackage, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	body, err := c.auth.body(request, extended)
	if err != nil {
		return nil, &irma.SessionError{ErrorType: irma.ErrorTransport, Err: errors.WrapPrefix(err, "failed to sign session request", 0)}
	}

	irma.Logger.WithField("type", request.Action()).Debug("Starting session")
	pkg := &irma.SessionPackage{}
	if err = c.transport.Post(ctx, "session", pkg, body); err != nil {
		return nil, err
	}
	if pkg.Token == "" || pkg.SessionPtr == nil {
		return nil, &irma.SessionError{ErrorType: irma.ErrorServerResponse, Info: "session package lacks token or session pointer"}
	}
	irma.Logger.WithField("token", pkg.Token).Debug("Session started")
	return pkg, nil
}

func sessionPath(token irma.RequestorToken, suffix string) string {
	path := "session/" + url.PathEscape(string(token))
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}

// Status returns the current status of the session.
func (c *Client) Status(ctx context.Context, token irma.RequestorToken) (irma.ServerStatus, error) {
	irma.Logger.WithField("token", token).Debug("Fetching session status")
	var status irma.ServerStatus
	if err := c.transport.Get(ctx, sessionPath(token, "status"), &status); err != nil {
		return "", err
	}
	return status, nil
}

// Cancel cancels the session.
func (c *Client) Cancel(ctx context.Context, token irma.RequestorToken) error {
	irma.Logger.WithField("token", token).Debug("Cancelling session")
	return c.transport.Delete(ctx, sessionPath(token, ""))
}

// Result returns the result of the session, if it finished successfully. If the session was
// cancelled or timed out, an error of type irma.ErrorSessionCancelled or irma.ErrorSessionTimedOut
// is returned. If the session is still running, an error of type irma.ErrorSessionNotFinished is
// returned, and the caller should try again later.
func (c *Client) Result(ctx context.Context, token irma.RequestorToken) (*irma.SessionResult, error) {
	irma.Logger.WithField("token", token).Debug("Fetching session result")
	result := &irma.SessionResult{}
	if err := c.transport.Get(ctx, sessionPath(token, "result"), result); err != nil {
		return nil, err
	}

	switch result.Status {
	case irma.ServerStatusDone:
		return result, nil
	case irma.ServerStatusCancelled:
		return nil, &irma.SessionError{ErrorType: irma.ErrorSessionCancelled, Status: result.Status, RemoteError: result.Err}
	case irma.ServerStatusTimeout:
		return nil, &irma.SessionError{ErrorType: irma.ErrorSessionTimedOut, Status: result.Status}
	case "":
		return nil, &irma.SessionError{ErrorType: irma.ErrorServerResponse, Info: "session result lacks a status"}
	default:
		return nil, &irma.SessionError{ErrorType: irma.ErrorSessionNotFinished, Status: result.Status}
	}
}

// String returns a description of the client in which any secrets are redacted.
func (c Client) String() string {
	return fmt.Sprintf("requestor.Client{URL: %s, Auth: %s}", c.url, c.auth)
}

func (c Client) GoString() string {
	return c.String()
}

// Format implements fmt.Formatter, so that no verb prints the client's secrets.
func (c Client) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, c.String())
}

func (b Builder) String() string {
	return fmt.Sprintf("requestor.Builder{URL: %s, Auth: %s}", b.url, b.auth)
}

func (b Builder) GoString() string {
	return b.String()
}

// Format implements fmt.Formatter, so that no verb prints the configured secrets.
func (b Builder) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, b.String())
}

func (c Client) MarshalJSON() ([]byte, error) {
	view := struct {
		URL        string     `json:"url"`
		AuthMethod AuthMethod `json:"authMethod"`
		Name       string     `json:"name,omitempty"`
		Key        *Secret    `json:"key,omitempty"`
	}{AuthMethod: c.auth.Method(), Name: c.auth.name}
	if c.url != nil {
		view.URL = c.url.String()
	}
	if c.auth.Method() != AuthMethodNone {
		s := Secret(redacted)
		view.Key = &s
	}
	return json.Marshal(view)
}

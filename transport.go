package irma

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/privacybydesign/irmarequestor/internal/common"
)

// HTTPTransport exchanges JSON messages with the requestor API of an IRMA server.
type HTTPTransport struct {
	// Base URL against which request paths are resolved, always ending in a slash
	Server  string
	client  *retryablehttp.Client
	headers http.Header
}

// Logger is used for logging. init() sets it to a logger with a prefixed text formatter;
// use SetLogger to replace it.
var Logger *logrus.Logger

var tlsClientConfig *tls.Config

const (
	userAgent       = "irmarequestor"
	contentTypeJSON = "application/json; charset=UTF-8"
	contentTypeText = "text/plain; charset=UTF-8"
)

func init() {
	logger := logrus.New()
	logger.SetFormatter(&prefixed.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
	SetLogger(logger)
}

// SetLogger sets the logger used by this module.
func SetLogger(logger *logrus.Logger) {
	Logger = logger
	common.Logger = logger
}

// SetTLSClientConfig sets the TLS configuration of transports created afterwards.
// The configuration must not be modified after being set.
func SetTLSClientConfig(config *tls.Config) {
	tlsClientConfig = config
}

// NewHTTPTransport returns a transport for the IRMA server at serverURL.
func NewHTTPTransport(serverURL string) *HTTPTransport {
	if serverURL != "" && !strings.HasSuffix(serverURL, "/") {
		serverURL += "/"
	}
	return &HTTPTransport{
		Server:  serverURL,
		client:  newClient(),
		headers: http.Header{},
	}
}

// newClient returns a retryablehttp client that never retries: failures are reported to the
// caller, which decides whether to try again.
func newClient() *retryablehttp.Client {
	clientLogger := log.New(io.Discard, "", 0)
	if Logger.IsLevelEnabled(logrus.TraceLevel) {
		clientLogger = log.New(Logger.WriterLevel(logrus.TraceLevel), "transport: ", 0)
	}
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &retryablehttp.Client{
		Logger:     clientLogger,
		RetryMax:   0,
		Backoff:    retryablehttp.DefaultBackoff,
		CheckRetry: noRetry,
		HTTPClient: &http.Client{
			Timeout: time.Minute,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSClientConfig:       tlsClientConfig,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
	}
}

func noRetry(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if cerr := ctx.Err(); cerr != nil {
		return false, cerr
	}
	return false, err
}

// SetHeader sets a header to be sent along with every request.
func (transport *HTTPTransport) SetHeader(name, val string) {
	transport.headers.Set(name, val)
}

// Post sends object to the server and parses the response into result. Strings are sent as
// text/plain, anything else as JSON.
func (transport *HTTPTransport) Post(ctx context.Context, path string, result interface{}, object interface{}) error {
	body, contentType, err := encodeBody(object)
	if err != nil {
		return err
	}
	return transport.do(ctx, http.MethodPost, path, body, contentType, result)
}

// Get parses the response to a GET request into result.
func (transport *HTTPTransport) Get(ctx context.Context, path string, result interface{}) error {
	return transport.do(ctx, http.MethodGet, path, nil, "", result)
}

// Delete sends a DELETE request, accepting any 2xx response.
func (transport *HTTPTransport) Delete(ctx context.Context, path string) error {
	return transport.do(ctx, http.MethodDelete, path, nil, "", nil)
}

func encodeBody(object interface{}) ([]byte, string, error) {
	switch o := object.(type) {
	case nil:
		return nil, "", nil
	case string:
		return []byte(o), contentTypeText, nil
	default:
		bts, err := json.Marshal(object)
		if err != nil {
			return nil, "", &SessionError{ErrorType: ErrorTransport, Err: errors.WrapPrefix(err, "failed to encode request", 0)}
		}
		return bts, contentTypeJSON, nil
	}
}

func (transport *HTTPTransport) do(
	ctx context.Context,
	method, path string,
	body []byte,
	contentType string,
	result interface{},
) error {
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, transport.Server+path, rawBody)
	if err != nil {
		return &SessionError{ErrorType: ErrorTransport, Err: err}
	}
	req.Header = transport.headers.Clone()
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	fields := logrus.Fields{"method": method, "path": path}
	if body != nil {
		Logger.WithFields(fields).Trace("transport: request: ", string(body))
	}
	res, err := transport.client.Do(req)
	if err != nil {
		return &SessionError{ErrorType: ErrorTransport, Err: err}
	}
	defer common.Close(res.Body)

	resbody, err := io.ReadAll(res.Body)
	if err != nil {
		return &SessionError{ErrorType: ErrorServerResponse, Err: err, RemoteStatus: res.StatusCode}
	}
	fields["status"] = res.StatusCode
	Logger.WithFields(fields).Trace("transport: response: ", string(resbody))

	return decodeResponse(res.StatusCode, resbody, result)
}

func decodeResponse(status int, body []byte, result interface{}) error {
	if status < 200 || status >= 300 {
		remote := &RemoteError{}
		if err := json.Unmarshal(body, remote); err != nil || remote.ErrorName == "" {
			return &SessionError{ErrorType: ErrorServerResponse, Err: err, RemoteStatus: status}
		}
		return &SessionError{ErrorType: ErrorApi, RemoteStatus: status, RemoteError: remote}
	}

	if result == nil {
		return nil
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return &SessionError{
			ErrorType:    ErrorServerResponse,
			Err:          errors.New("empty response received, but result was expected"),
			RemoteStatus: status,
		}
	}
	var err error
	if v, ok := result.(Validator); ok {
		err = UnmarshalValidate(body, v)
	} else {
		err = json.Unmarshal(body, result)
	}
	if err != nil {
		return &SessionError{ErrorType: ErrorServerResponse, Err: err, RemoteStatus: status}
	}
	return nil
}

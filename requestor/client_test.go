package requestor

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	irma "github.com/privacybydesign/irmarequestor"
	"github.com/privacybydesign/irmarequestor/internal/test"
)

const emailAttr = "pbdf.sidn-pbdf.email.email"

func disclosureRequest(t *testing.T) *irma.DisclosureRequest {
	request, err := irma.NewDisclosureRequestBuilder().
		AddDiscon(irma.AttributeDisCon{irma.AttributeCon{irma.NewAttributeRequest(emailAttr)}}).
		Build()
	require.NoError(t, err)
	return request
}

func emailResult() *irma.SessionResult {
	email := "test@example.com"
	return &irma.SessionResult{
		Status:      irma.ServerStatusDone,
		ProofStatus: irma.ProofStatusValid,
		Disclosed: [][]*irma.DisclosedAttribute{{{
			Identifier: irma.NewAttributeTypeIdentifier(emailAttr),
			Status:     irma.AttributeProofStatusPresent,
			RawValue:   &email,
			Value:      irma.NewTranslatedString(email, email),
		}}},
	}
}

func TestNewInvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8088", "ftp://example.com", "http://", "http://[::1"} {
		_, err := New(u)
		require.Error(t, err, u)
		require.Equal(t, irma.ErrorInvalidURL, irma.ErrorTypeOf(err), u)
	}

	c, err := New("https://irma.example.com/api")
	require.NoError(t, err)
	require.Equal(t, "https://irma.example.com/api", c.URL())
	require.Equal(t, AuthMethodNone, c.AuthMethod())
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	server := test.StartIrmaServer(t)
	client, err := New(server.URL)
	require.NoError(t, err)

	pkg, err := client.Start(ctx, disclosureRequest(t))
	require.NoError(t, err)
	require.Equal(t, irma.RequestorToken("T1"), pkg.Token)
	require.Equal(t, irma.ActionDisclosing, pkg.SessionPtr.Type)
	require.Equal(t, server.URL+"/irma/session/T1", pkg.SessionPtr.URL)

	received := server.Requests()
	require.Len(t, received, 1)
	require.JSONEq(t,
		`{"@context":"https://irma.app/ld/request/disclosure/v2","disclose":[[["pbdf.sidn-pbdf.email.email"]]]}`,
		string(received[0].Body),
	)
	require.Equal(t, "irmarequestor", received[0].Header.Get("User-Agent"))
	require.Empty(t, received[0].Header.Get("Authorization"))

	status, err := client.Status(ctx, pkg.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusInitialized, status)

	server.SetStatus(pkg.Token, irma.ServerStatusConnected)
	_, err = client.Result(ctx, pkg.Token)
	require.Error(t, err)
	require.True(t, irma.IsNotFinished(err))
	require.False(t, irma.IsNetworkError(err))
	serr := &irma.SessionError{}
	require.ErrorAs(t, err, &serr)
	require.True(t, serr.Retryable())
	require.Equal(t, irma.ServerStatusConnected, serr.Status)

	server.Finish(pkg.Token, emailResult())
	first, err := client.Result(ctx, pkg.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusDone, first.Status)
	require.Equal(t, irma.ProofStatusValid, first.ProofStatus)
	require.Equal(t, pkg.Token, first.Token)
	require.Equal(t, irma.ActionDisclosing, first.Type)
	disclosed := first.Disclosures(irma.NewAttributeTypeIdentifier(emailAttr))
	require.Len(t, disclosed, 1)
	require.Equal(t, "test@example.com", *disclosed[0].RawValue)
	require.Equal(t, irma.NewTranslatedString("test@example.com", "test@example.com"), disclosed[0].Value)

	second, err := client.Result(ctx, pkg.Token)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestResultStatusGate(t *testing.T) {
	ctx := context.Background()
	server := test.StartIrmaServer(t)
	client, err := New(server.URL)
	require.NoError(t, err)

	tests := []struct {
		status  irma.ServerStatus
		errType irma.ErrorType
	}{
		{irma.ServerStatusInitialized, irma.ErrorSessionNotFinished},
		{irma.ServerStatusPairing, irma.ErrorSessionNotFinished},
		{irma.ServerStatusConnected, irma.ErrorSessionNotFinished},
		{irma.ServerStatusCancelled, irma.ErrorSessionCancelled},
		{irma.ServerStatusTimeout, irma.ErrorSessionTimedOut},
		{irma.ServerStatusDone, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			pkg, err := client.Start(ctx, disclosureRequest(t))
			require.NoError(t, err)
			server.SetStatus(pkg.Token, tt.status)

			result, err := client.Result(ctx, pkg.Token)
			if tt.errType == "" {
				require.NoError(t, err)
				require.Equal(t, tt.status, result.Status)
				return
			}
			require.Nil(t, result)
			require.Equal(t, tt.errType, irma.ErrorTypeOf(err))
			require.Equal(t, tt.errType == irma.ErrorSessionNotFinished, irma.IsNotFinished(err))
		})
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	server := test.StartIrmaServer(t)
	client, err := New(server.URL)
	require.NoError(t, err)

	pkg, err := client.Start(ctx, disclosureRequest(t))
	require.NoError(t, err)
	require.NoError(t, client.Cancel(ctx, pkg.Token))

	status, err := client.Status(ctx, pkg.Token)
	require.NoError(t, err)
	require.Equal(t, irma.ServerStatusCancelled, status)

	_, err = client.Result(ctx, pkg.Token)
	require.Equal(t, irma.ErrorSessionCancelled, irma.ErrorTypeOf(err))
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	server := test.StartIrmaServer(t)
	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Status(ctx, "nonexisting")
	require.True(t, irma.IsNetworkError(err))
	serr := &irma.SessionError{}
	require.ErrorAs(t, err, &serr)
	require.Equal(t, irma.ErrorApi, serr.ErrorType)
	require.Equal(t, http.StatusBadRequest, serr.RemoteStatus)
	require.Equal(t, "SESSION_UNKNOWN", serr.RemoteError.ErrorName)

	require.True(t, irma.IsNetworkError(client.Cancel(ctx, "nonexisting")))
}

func TestStartExtended(t *testing.T) {
	server := test.StartIrmaServer(t)
	client, err := New(server.URL)
	require.NoError(t, err)

	issuance, err := irma.NewIssuanceRequestBuilder().
		AddCredential(irma.NewCredentialBuilder(irma.NewCredentialTypeIdentifier("irma-demo.MijnOverheid.root")).
			Attribute("BSN", "12345").
			Build()).
		Build()
	require.NoError(t, err)

	pkg, err := client.StartExtended(context.Background(), &irma.RequestorRequest{
		RequestorBaseRequest: irma.RequestorBaseRequest{ClientTimeout: 120, CallbackURL: "https://example.com/callback"},
		Request:              issuance,
	})
	require.NoError(t, err)
	require.Equal(t, irma.ActionIssuing, pkg.SessionPtr.Type)

	received := server.Requests()[0]
	require.Equal(t, 120, received.Request.ClientTimeout)
	require.Equal(t, "https://example.com/callback", received.Request.CallbackURL)
	require.IsType(t, &irma.IssuanceRequest{}, received.Request.Request)
}

func TestStartInvalidRequest(t *testing.T) {
	server := test.StartIrmaServer(t)
	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Start(context.Background(), &irma.DisclosureRequest{})
	require.Equal(t, irma.ErrorInvalidRequest, irma.ErrorTypeOf(err))
	_, err = client.Start(context.Background(), nil)
	require.Equal(t, irma.ErrorInvalidRequest, irma.ErrorTypeOf(err))
	require.Empty(t, server.Requests())
}

func TestTokenAuthentication(t *testing.T) {
	server := test.StartIrmaServer(t)
	server.Token = "secrettoken"

	client, err := New(server.URL)
	require.NoError(t, err)
	_, err = client.Start(context.Background(), disclosureRequest(t))
	require.True(t, irma.IsNetworkError(err))
	require.Equal(t, irma.ErrorApi, irma.ErrorTypeOf(err))

	b, err := NewBuilder(server.URL)
	require.NoError(t, err)
	client = b.TokenAuthentication("secrettoken").Build()
	require.Equal(t, AuthMethodToken, client.AuthMethod())
	_, err = client.Start(context.Background(), disclosureRequest(t))
	require.NoError(t, err)

	received := server.Requests()
	require.Len(t, received, 1)
	require.Equal(t, "secrettoken", received[0].Header.Get("Authorization"))
}

func TestHMACAuthentication(t *testing.T) {
	key := []byte("eGE2PSomOT84amVVdTU+LmYtJXJWZ2RyO2pmMwo=")
	server := test.StartIrmaServer(t)
	server.JwtKey = key

	b, err := NewBuilder(server.URL)
	require.NoError(t, err)
	client := b.HMACAuthentication("myapp", key).Build()

	request, err := irma.NewSignatureRequestBuilder("I owe you").
		AddDiscon(irma.AttributeDisCon{irma.AttributeCon{irma.NewAttributeRequest(emailAttr)}}).
		Build()
	require.NoError(t, err)
	pkg, err := client.Start(context.Background(), request)
	require.NoError(t, err)
	require.Equal(t, irma.ActionSigning, pkg.SessionPtr.Type)

	received := server.Requests()[0]
	require.Equal(t, "text/plain; charset=UTF-8", received.Header.Get("Content-Type"))
	require.Equal(t, "myapp", received.Jwt.Issuer)
	require.Equal(t, irma.SubjectSignatureRequest, received.Jwt.Subject)
	require.NotNil(t, received.Jwt.SignatureRequest)
	require.Equal(t, "I owe you", received.Request.Request.(*irma.SignatureRequest).Message)
}

func TestRSAAuthentication(t *testing.T) {
	sk, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := test.StartIrmaServer(t)
	server.JwtKey = &sk.PublicKey

	b, err := NewBuilder(server.URL)
	require.NoError(t, err)
	client := b.RSAAuthentication("myapp", sk).Build()

	_, err = client.StartExtended(context.Background(), &irma.RequestorRequest{
		RequestorBaseRequest: irma.RequestorBaseRequest{ResultJwtValidity: 60},
		Request:              disclosureRequest(t),
	})
	require.NoError(t, err)

	received := server.Requests()[0]
	require.Equal(t, irma.SubjectVerificationRequest, received.Jwt.Subject)
	require.Equal(t, 60, received.Request.ResultJwtValidity)

	// a server holding another key rejects the request
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server.JwtKey = &other.PublicKey
	_, err = client.Start(context.Background(), disclosureRequest(t))
	require.Equal(t, irma.ErrorApi, irma.ErrorTypeOf(err))
}

func TestSecretRedacted(t *testing.T) {
	b, err := NewBuilder("https://irma.example.com")
	require.NoError(t, err)
	client := b.TokenAuthentication("supersecret").Build()

	outputs := []string{
		fmt.Sprint(client),
		fmt.Sprintf("%v", client),
		fmt.Sprintf("%+v", client),
		fmt.Sprintf("%#v", client),
		fmt.Sprintf("%s", *client),
		fmt.Sprintf("%+v", *client),
		client.String(),
		fmt.Sprintf("%v", Secret("supersecret")),
		fmt.Sprintf("%#v", Secret("supersecret")),
		fmt.Sprintf("%+v", Configuration{Key: "supersecret"}),
	}
	bts, err := json.Marshal(client)
	require.NoError(t, err)
	outputs = append(outputs, string(bts))
	bts, err = json.Marshal(Configuration{Key: "supersecret"})
	require.NoError(t, err)
	outputs = append(outputs, string(bts))

	for _, output := range outputs {
		require.NotContains(t, output, "supersecret")
	}
	require.Contains(t, client.String(), "<redacted>")
	require.Contains(t, client.String(), "https://irma.example.com")
}

func TestBuilderSecretRedacted(t *testing.T) {
	hmacKey := []byte("hmackey")
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	newBuilder := func() *Builder {
		b, err := NewBuilder("https://irma.example.com")
		require.NoError(t, err)
		return b
	}
	builders := map[string]*Builder{
		"token": newBuilder().TokenAuthentication("supersecret"),
		"hmac":  newBuilder().HMACAuthentication("requestor", hmacKey),
		"rsa":   newBuilder().RSAAuthentication("requestor", rsaKey),
	}
	forbidden := []string{
		"supersecret",
		string(hmacKey),
		fmt.Sprint(hmacKey),
		rsaKey.D.String(),
		rsaKey.N.String(),
	}

	for name, b := range builders {
		t.Run(name, func(t *testing.T) {
			outputs := []string{
				fmt.Sprint(b),
				fmt.Sprintf("%v", b),
				fmt.Sprintf("%+v", b),
				fmt.Sprintf("%#v", b),
				fmt.Sprintf("%s", b),
				fmt.Sprintf("%+v", *b),
				fmt.Sprintf("%#v", *b),
			}
			for _, output := range outputs {
				for _, secret := range forbidden {
					require.NotContains(t, output, secret)
				}
				require.Contains(t, output, "<redacted>")
				require.Contains(t, output, "https://irma.example.com")
			}
		})
	}
}

func TestResultWithoutStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{}"))
	}))
	defer ts.Close()
	client, err := New(ts.URL)
	require.NoError(t, err)

	_, err = client.Result(context.Background(), "T1")
	require.Equal(t, irma.ErrorServerResponse, irma.ErrorTypeOf(err))
}

func TestNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("not json"))
	}))
	client, err := New(ts.URL)
	require.NoError(t, err)

	_, err = client.Status(context.Background(), "T1")
	require.Equal(t, irma.ErrorServerResponse, irma.ErrorTypeOf(err))
	serr := &irma.SessionError{}
	require.ErrorAs(t, err, &serr)
	require.Equal(t, http.StatusInternalServerError, serr.RemoteStatus)

	ts.Close()
	_, err = client.Status(context.Background(), "T1")
	require.Equal(t, irma.ErrorTransport, irma.ErrorTypeOf(err))
	require.True(t, irma.IsNetworkError(err))
}

func TestJwtRoundTrip(t *testing.T) {
	key := []byte("key")
	request := &irma.RequestorRequest{Request: disclosureRequest(t)}
	str, err := irma.SignRequestorRequest(request, jwt.SigningMethodHS256, key, "myapp")
	require.NoError(t, err)

	claims := &irma.RequestorJwt{}
	_, err = jwt.ParseWithClaims(str, claims, func(*jwt.Token) (interface{}, error) { return key, nil })
	require.NoError(t, err)
	require.Equal(t, request, claims.RequestorRequest())
}

func TestSignRequest(t *testing.T) {
	key := []byte("hmac secret")
	b, err := NewBuilder("https://irma.example.com")
	require.NoError(t, err)
	client := b.HMACAuthentication("myapp", key).Build()

	signed, err := client.SignRequest(&irma.RequestorRequest{Request: disclosureRequest(t)})
	require.NoError(t, err)
	claims := &irma.RequestorJwt{}
	_, err = jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	})
	require.NoError(t, err)
	require.Equal(t, "myapp", claims.Issuer)
	require.Equal(t, irma.ActionDisclosing, claims.RequestorRequest().Action())

	_, err = client.SignRequest(&irma.RequestorRequest{})
	require.Error(t, err)

	client, err = New("https://irma.example.com")
	require.NoError(t, err)
	_, err = client.SignRequest(&irma.RequestorRequest{Request: disclosureRequest(t)})
	require.Error(t, err)
}

package requestor

import (
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/golang-jwt/jwt/v4"

	irma "github.com/privacybydesign/irmarequestor"
)

// AuthMethod is the way in which the client authenticates its session requests to the IRMA server.
type AuthMethod string

const (
	AuthMethodNone  AuthMethod = "none"  // No authentication
	AuthMethodToken AuthMethod = "token" // Static token in the Authorization header
	AuthMethodHmac  AuthMethod = "hmac"  // Session requests signed as HS256 JWTs
	AuthMethodRSA   AuthMethod = "rsa"   // Session requests signed as RS256 JWTs
)

const redacted = "<redacted>"

// Secret is a string that never shows its contents when printed or marshaled.
type Secret string

func (Secret) String() string   { return redacted }
func (Secret) GoString() string { return redacted }

func (Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

func (Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

type authentication struct {
	method AuthMethod
	name   string
	token  Secret
	key    interface{}
	alg    jwt.SigningMethod
}

func tokenAuthentication(token string) authentication {
	return authentication{method: AuthMethodToken, token: Secret(token)}
}

func hmacAuthentication(name string, key []byte) authentication {
	return authentication{method: AuthMethodHmac, name: name, key: key, alg: jwt.SigningMethodHS256}
}

func rsaAuthentication(name string, key *rsa.PrivateKey) authentication {
	return authentication{method: AuthMethodRSA, name: name, key: key, alg: jwt.SigningMethodRS256}
}

func (a authentication) Method() AuthMethod {
	if a.method == "" {
		return AuthMethodNone
	}
	return a.method
}

func (a authentication) jwt() bool {
	return a.method == AuthMethodHmac || a.method == AuthMethodRSA
}

// body returns what to POST to start a session: the request itself, or a signed JWT containing it.
func (a authentication) body(request *irma.RequestorRequest, extended bool) (interface{}, error) {
	if a.jwt() {
		return irma.SignRequestorRequest(request, a.alg, a.key, a.name)
	}
	if extended {
		return request, nil
	}
	return request.Request, nil
}

func (a authentication) String() string {
	switch a.Method() {
	case AuthMethodNone:
		return string(AuthMethodNone)
	case AuthMethodToken:
		return fmt.Sprintf("%s(%s)", a.method, redacted)
	default:
		return fmt.Sprintf("%s(%s, %s)", a.method, a.name, redacted)
	}
}

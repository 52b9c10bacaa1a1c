package irma

import (
	"time"

	"github.com/go-errors/errors"
	"github.com/golang-jwt/jwt/v4"
)

// JWT subjects of requestor JWTs, per session type.
const (
	SubjectVerificationRequest = "verification_request"
	SubjectSignatureRequest    = "signature_request"
	SubjectIssuanceRequest     = "issue_request"
)

// RequestorJwt is a JWT with which a requestor authenticates its session request to the IRMA
// server. Exactly one of the request fields is set, depending on the session type.
type RequestorJwt struct {
	jwt.RegisteredClaims
	DisclosureRequest *RequestorRequest `json:"sprequest,omitempty"`
	SignatureRequest  *RequestorRequest `json:"absrequest,omitempty"`
	IssuanceRequest   *RequestorRequest `json:"iprequest,omitempty"`
}

// NewRequestorJwt wraps the specified request in a RequestorJwt issued by the specified requestor.
func NewRequestorJwt(name string, request *RequestorRequest) (*RequestorJwt, error) {
	if request == nil || request.Request == nil {
		return nil, &SessionError{ErrorType: ErrorInvalidRequest, Info: "no session request to sign"}
	}
	j := &RequestorJwt{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   name,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	switch request.Action() {
	case ActionDisclosing:
		j.Subject = SubjectVerificationRequest
		j.DisclosureRequest = request
	case ActionSigning:
		j.Subject = SubjectSignatureRequest
		j.SignatureRequest = request
	case ActionIssuing:
		j.Subject = SubjectIssuanceRequest
		j.IssuanceRequest = request
	default:
		return nil, errors.Errorf("unknown session type %s", request.Action())
	}
	return j, nil
}

// RequestorRequest returns the request contained in the JWT.
func (j *RequestorJwt) RequestorRequest() *RequestorRequest {
	switch {
	case j.DisclosureRequest != nil:
		return j.DisclosureRequest
	case j.SignatureRequest != nil:
		return j.SignatureRequest
	default:
		return j.IssuanceRequest
	}
}

// Sign signs the JWT with the specified algorithm and key.
func (j *RequestorJwt) Sign(alg jwt.SigningMethod, key interface{}) (string, error) {
	return jwt.NewWithClaims(alg, j).SignedString(key)
}

// SignRequestorRequest wraps the request in a RequestorJwt from the named requestor and signs it.
func SignRequestorRequest(request *RequestorRequest, alg jwt.SigningMethod, key interface{}, name string) (string, error) {
	j, err := NewRequestorJwt(name, request)
	if err != nil {
		return "", err
	}
	return j.Sign(alg, key)
}

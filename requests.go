package irma

import (
	"bytes"
	"encoding/json"

	"github.com/go-errors/errors"
	"github.com/hashicorp/go-multierror"
)

const (
	LDContextDisclosureRequest = "https://irma.app/ld/request/disclosure/v2"
	LDContextSignatureRequest  = "https://irma.app/ld/request/signature/v2"
	LDContextIssuanceRequest   = "https://irma.app/ld/request/issuance/v2"
)

// An AttributeRequest asks for an instance of an attribute type, possibly requiring it to have
// a specified value, in a session request.
//
// A request without Value and NotNull marshals to the bare attribute type identifier, unless
// Compound is set, in which case it marshals to an object like requests with Value or NotNull do.
// Unmarshaling sets Compound exactly when the input is an object. A request with Value or NotNull
// but without Compound therefore decodes with Compound set; the constructors below set it already.
type AttributeRequest struct {
	Type    AttributeTypeIdentifier `json:"type"`
	Value   *string                 `json:"value,omitempty"`
	NotNull bool                    `json:"notNull,omitempty"`

	Compound bool `json:"-"`
}

// An AttributeCon is only satisfied if all of its containing attribute requests are satisfied.
type AttributeCon []AttributeRequest

// An AttributeDisCon is satisfied if at least one of its containing AttributeCon is satisfied.
type AttributeDisCon []AttributeCon

// AttributeConDisCon is only satisfied if all of the containing AttributeDisCon are satisfied.
type AttributeConDisCon []AttributeDisCon

// BaseRequest contains the fields shared by all session request types.
type BaseRequest struct {
	// Attributes to be disclosed
	Disclose AttributeConDisCon `json:"disclose,omitempty"`
	// For mobile sessions, the URL to which the IRMA app returns the user after the session
	ClientReturnURL string `json:"clientReturnUrl,omitempty"`
	// Have the IRMA server append the session token to ClientReturnURL
	AugmentReturnURL bool `json:"augmentReturnUrl,omitempty"`
	// Labels for the disjunctions in Disclose, keyed by their index
	Labels map[int]TranslatedString `json:"labels,omitempty"`
}

// A DisclosureRequest is a request to disclose certain attributes. Construct new instances using
// NewDisclosureRequest() or a DisclosureRequestBuilder.
type DisclosureRequest struct {
	LDContext string `json:"@context"`
	BaseRequest
}

// A SignatureRequest is a a request to sign a message with certain attributes. Construct new
// instances using NewSignatureRequest() or a SignatureRequestBuilder.
type SignatureRequest struct {
	LDContext string `json:"@context"`
	Message   string `json:"message"`
	BaseRequest
}

// An IssuanceRequest is a request to issue certain credentials,
// optionally also asking for certain attributes to be simultaneously disclosed. Construct new
// instances using NewIssuanceRequest() or an IssuanceRequestBuilder.
type IssuanceRequest struct {
	LDContext   string               `json:"@context"`
	Credentials []*CredentialRequest `json:"credentials"`
	BaseRequest
}

// Validator instances can check their own consistency.
type Validator interface {
	Validate() error
}

// SessionRequest is one of *DisclosureRequest, *SignatureRequest or *IssuanceRequest.
type SessionRequest interface {
	Validator
	Base() *BaseRequest
	Action() Action
	sessionRequest()
}

// NextSessionData contains the URL from which the IRMA server fetches the request of a session
// to be chained after the current one.
type NextSessionData struct {
	URL string `json:"url"`
}

// RequestorBaseRequest contains fields with which the requestor configures how the IRMA server
// executes a session.
type RequestorBaseRequest struct {
	ResultJwtValidity int              `json:"validity,omitempty"`    // Validity of session result JWT in seconds
	ClientTimeout     int              `json:"timeout,omitempty"`     // Wait this many seconds for the IRMA app to connect before the session times out
	CallbackURL       string           `json:"callbackUrl,omitempty"` // URL to post session result to
	NextSession       *NextSessionData `json:"nextSession,omitempty"` // Session to chain after this one
}

// RequestorRequest is a SessionRequest extended with instructions for the IRMA server.
// This message is less stable than SessionRequest and may change in future server versions.
type RequestorRequest struct {
	RequestorBaseRequest
	Request SessionRequest `json:"request"`
}

// NewAttributeRequest requests the specified attribute, with any value or no value at all.
func NewAttributeRequest(attr string) AttributeRequest {
	return AttributeRequest{Type: NewAttributeTypeIdentifier(attr)}
}

// NewNonNullAttributeRequest requests the specified attribute, which must have some value.
func NewNonNullAttributeRequest(attr string) AttributeRequest {
	return AttributeRequest{Type: NewAttributeTypeIdentifier(attr), NotNull: true, Compound: true}
}

// NewAttributeRequestWithValue requests the specified attribute having exactly the specified value.
// This is useful when the requestor wants to enforce a property of the user (such as a minimum
// age) rather than learn an attribute value.
func NewAttributeRequestWithValue(attr, value string) AttributeRequest {
	return AttributeRequest{Type: NewAttributeTypeIdentifier(attr), Value: &value, Compound: true}
}

func (ar AttributeRequest) MarshalJSON() ([]byte, error) {
	if !ar.Compound && ar.Value == nil && !ar.NotNull {
		return json.Marshal(ar.Type)
	}
	type attributeRequest AttributeRequest
	return json.Marshal(attributeRequest(ar))
}

func (ar *AttributeRequest) UnmarshalJSON(bts []byte) error {
	bts = bytes.TrimSpace(bts)
	if len(bts) > 0 && bts[0] == '"' {
		var id AttributeTypeIdentifier
		if err := json.Unmarshal(bts, &id); err != nil {
			return err
		}
		*ar = AttributeRequest{Type: id}
		return nil
	}

	type attributeRequest AttributeRequest
	var tmp attributeRequest
	if err := json.Unmarshal(bts, &tmp); err != nil {
		return errors.WrapPrefix(err, "failed to unmarshal attribute request", 0)
	}
	tmp.Compound = true
	*ar = AttributeRequest(tmp)
	return nil
}

// Satisfy returns if the specified attribute value satisfies the request.
func (ar *AttributeRequest) Satisfy(attr AttributeTypeIdentifier, val *string) bool {
	if ar.Type != attr {
		return false
	}
	if ar.Value != nil {
		return val != nil && *ar.Value == *val
	}
	return !ar.NotNull || val != nil
}

// AttributeTypes returns the attribute types occurring in the condiscon, in order of appearance
// and without duplicates.
func (cdc AttributeConDisCon) AttributeTypes() []AttributeTypeIdentifier {
	var (
		list []AttributeTypeIdentifier
		seen = map[AttributeTypeIdentifier]struct{}{}
	)
	for _, discon := range cdc {
		for _, con := range discon {
			for _, attr := range con {
				if _, ok := seen[attr.Type]; ok {
					continue
				}
				seen[attr.Type] = struct{}{}
				list = append(list, attr.Type)
			}
		}
	}
	return list
}

func (cdc AttributeConDisCon) Validate() error {
	var err error
	for i, discon := range cdc {
		if len(discon) == 0 {
			err = multierror.Append(err, errors.Errorf("disjunction %d is empty", i))
		}
		for _, con := range discon {
			for _, attr := range con {
				if attr.Type.Empty() {
					err = multierror.Append(err, errors.Errorf("disjunction %d contains an attribute request without type", i))
				}
			}
		}
	}
	return err
}

// NewDisclosureRequest returns a new disclosure request.
func NewDisclosureRequest(attrs ...AttributeTypeIdentifier) *DisclosureRequest {
	request := &DisclosureRequest{LDContext: LDContextDisclosureRequest}
	for _, attr := range attrs {
		request.Disclose = append(request.Disclose, AttributeDisCon{AttributeCon{{Type: attr}}})
	}
	return request
}

// NewSignatureRequest returns a new signature request for the specified message.
func NewSignatureRequest(message string, attrs ...AttributeTypeIdentifier) *SignatureRequest {
	dr := NewDisclosureRequest(attrs...)
	return &SignatureRequest{
		LDContext:   LDContextSignatureRequest,
		Message:     message,
		BaseRequest: dr.BaseRequest,
	}
}

// NewIssuanceRequest returns a new issuance request for the specified credentials.
func NewIssuanceRequest(creds []*CredentialRequest, attrs ...AttributeTypeIdentifier) *IssuanceRequest {
	dr := NewDisclosureRequest(attrs...)
	return &IssuanceRequest{
		LDContext:   LDContextIssuanceRequest,
		Credentials: creds,
		BaseRequest: dr.BaseRequest,
	}
}

func (b *BaseRequest) validate(requireDisclose bool) error {
	var err error
	if requireDisclose && len(b.Disclose) == 0 {
		err = multierror.Append(err, errors.New("no attributes to disclose"))
	}
	if cdcErr := b.Disclose.Validate(); cdcErr != nil {
		err = multierror.Append(err, cdcErr)
	}
	for i := range b.Labels {
		if i < 0 || i >= len(b.Disclose) {
			err = multierror.Append(err, errors.Errorf("label refers to nonexisting disjunction %d", i))
		}
	}
	if b.AugmentReturnURL && b.ClientReturnURL == "" {
		err = multierror.Append(err, errors.New("augmentReturnUrl requires a clientReturnUrl"))
	}
	if err != nil {
		return &SessionError{ErrorType: ErrorInvalidRequest, Err: err}
	}
	return nil
}

func (dr *DisclosureRequest) Base() *BaseRequest { return &dr.BaseRequest }
func (dr *DisclosureRequest) Action() Action     { return ActionDisclosing }
func (dr *DisclosureRequest) sessionRequest()    {}

func (dr *DisclosureRequest) Validate() error {
	return dr.BaseRequest.validate(true)
}

func (dr *DisclosureRequest) MarshalJSON() ([]byte, error) {
	type disclosureRequest DisclosureRequest
	r := disclosureRequest(*dr)
	r.LDContext = LDContextDisclosureRequest
	return json.Marshal(r)
}

func (sr *SignatureRequest) Base() *BaseRequest { return &sr.BaseRequest }
func (sr *SignatureRequest) Action() Action     { return ActionSigning }
func (sr *SignatureRequest) sessionRequest()    {}

func (sr *SignatureRequest) Validate() error {
	return sr.BaseRequest.validate(true)
}

func (sr *SignatureRequest) MarshalJSON() ([]byte, error) {
	type signatureRequest SignatureRequest
	r := signatureRequest(*sr)
	r.LDContext = LDContextSignatureRequest
	return json.Marshal(r)
}

func (ir *IssuanceRequest) Base() *BaseRequest { return &ir.BaseRequest }
func (ir *IssuanceRequest) Action() Action     { return ActionIssuing }
func (ir *IssuanceRequest) sessionRequest()    {}

func (ir *IssuanceRequest) Validate() error {
	var err error
	if len(ir.Credentials) == 0 {
		err = multierror.Append(err, errors.New("no credentials to issue"))
	}
	for i, cred := range ir.Credentials {
		switch {
		case cred == nil:
			err = multierror.Append(err, errors.Errorf("credential %d is nil", i))
		case cred.CredentialTypeID.Empty():
			err = multierror.Append(err, errors.Errorf("credential %d has no type", i))
		case len(cred.Attributes) == 0:
			err = multierror.Append(err, errors.Errorf("credential %s has no attributes", cred.CredentialTypeID))
		}
	}
	if baseErr := ir.BaseRequest.validate(false); baseErr != nil {
		err = multierror.Append(err, baseErr.(*SessionError).Err)
	}
	if err != nil {
		return &SessionError{ErrorType: ErrorInvalidRequest, Err: err}
	}
	return nil
}

func (ir *IssuanceRequest) MarshalJSON() ([]byte, error) {
	type issuanceRequest IssuanceRequest
	r := issuanceRequest(*ir)
	r.LDContext = LDContextIssuanceRequest
	return json.Marshal(r)
}

// UnmarshalValidate json.Unmarshal's the specified bytes into dest, and validates the result.
func UnmarshalValidate(data []byte, dest Validator) error {
	if err := json.Unmarshal(data, dest); err != nil {
		return err
	}
	return dest.Validate()
}

// ParseSessionRequest parses the specified bytes as a disclosure, signature or issuance request,
// depending on its @context, and validates it.
func ParseSessionRequest(bts []byte) (SessionRequest, error) {
	var probe struct {
		LDContext string `json:"@context"`
	}
	if err := json.Unmarshal(bts, &probe); err != nil {
		return nil, errors.WrapPrefix(err, "failed to parse session request", 0)
	}

	var request SessionRequest
	switch probe.LDContext {
	case LDContextDisclosureRequest:
		request = &DisclosureRequest{}
	case LDContextSignatureRequest:
		request = &SignatureRequest{}
	case LDContextIssuanceRequest:
		request = &IssuanceRequest{}
	default:
		return nil, errors.Errorf("unsupported session request @context %q", probe.LDContext)
	}
	if err := UnmarshalValidate(bts, request); err != nil {
		return nil, err
	}
	return request, nil
}

// ParseRequestorRequest parses the specified bytes either as a RequestorRequest, or as a bare
// session request which is then wrapped in a RequestorRequest.
func ParseRequestorRequest(bts []byte) (*RequestorRequest, error) {
	var probe struct {
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(bts, &probe); err != nil {
		return nil, errors.WrapPrefix(err, "failed to parse requestor request", 0)
	}
	if probe.Request == nil {
		request, err := ParseSessionRequest(bts)
		if err != nil {
			return nil, err
		}
		return &RequestorRequest{Request: request}, nil
	}
	rrequest := &RequestorRequest{}
	if err := UnmarshalValidate(bts, rrequest); err != nil {
		return nil, err
	}
	return rrequest, nil
}

func (rr *RequestorRequest) UnmarshalJSON(bts []byte) error {
	var tmp struct {
		RequestorBaseRequest
		Request json.RawMessage `json:"request"`
	}
	if err := json.Unmarshal(bts, &tmp); err != nil {
		return err
	}
	rr.RequestorBaseRequest = tmp.RequestorBaseRequest
	rr.Request = nil
	if tmp.Request == nil {
		return nil
	}
	request, err := ParseSessionRequest(tmp.Request)
	if err != nil {
		return err
	}
	rr.Request = request
	return nil
}

func (rr *RequestorRequest) Validate() error {
	if rr.Request == nil {
		return &SessionError{ErrorType: ErrorInvalidRequest, Info: "requestor request contains no session request"}
	}
	var err error
	if rr.ResultJwtValidity < 0 {
		err = multierror.Append(err, errors.New("validity must not be negative"))
	}
	if rr.ClientTimeout < 0 {
		err = multierror.Append(err, errors.New("timeout must not be negative"))
	}
	if rr.NextSession != nil && rr.NextSession.URL == "" {
		err = multierror.Append(err, errors.New("nextSession requires a url"))
	}
	if err != nil {
		return &SessionError{ErrorType: ErrorInvalidRequest, Err: err}
	}
	return rr.Request.Validate()
}

// Action returns the session type of the wrapped session request.
func (rr *RequestorRequest) Action() Action {
	if rr.Request == nil {
		return ""
	}
	return rr.Request.Action()
}

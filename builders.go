package irma

// baseRequestBuilder accumulates the fields shared by all session request types.
type baseRequestBuilder struct {
	base BaseRequest
}

func (b *baseRequestBuilder) addDiscon(discon AttributeDisCon) {
	b.base.Disclose = append(b.base.Disclose, discon)
}

func (b *baseRequestBuilder) addDiscons(discons []AttributeDisCon) {
	b.base.Disclose = append(b.base.Disclose, discons...)
}

func (b *baseRequestBuilder) addDisconWithLabel(discon AttributeDisCon, label TranslatedString) {
	index := len(b.base.Disclose)
	b.base.Disclose = append(b.base.Disclose, discon)
	if b.base.Labels == nil {
		b.base.Labels = map[int]TranslatedString{}
	}
	b.base.Labels[index] = label
}

// Setting a return URL again overwrites the previous one, including its augmentation setting.
func (b *baseRequestBuilder) returnURL(url string, augment bool) {
	if b.base.ClientReturnURL != "" {
		Logger.WithField("previous", b.base.ClientReturnURL).Debug("Overwriting client return URL")
	}
	b.base.ClientReturnURL = url
	b.base.AugmentReturnURL = augment
}

// snapshot copies the accumulated request so that later builder calls do not alter built requests.
func (b *baseRequestBuilder) snapshot() BaseRequest {
	base := b.base
	if b.base.Disclose != nil {
		base.Disclose = append(AttributeConDisCon(nil), b.base.Disclose...)
	}
	if b.base.Labels != nil {
		base.Labels = make(map[int]TranslatedString, len(b.base.Labels))
		for index, label := range b.base.Labels {
			base.Labels[index] = label
		}
	}
	return base
}

// DisclosureRequestBuilder constructs a DisclosureRequest.
type DisclosureRequestBuilder struct {
	baseRequestBuilder
}

// NewDisclosureRequestBuilder returns an empty DisclosureRequestBuilder.
func NewDisclosureRequestBuilder() *DisclosureRequestBuilder {
	return &DisclosureRequestBuilder{}
}

// AddDiscon adds a disjunction to the request.
func (b *DisclosureRequestBuilder) AddDiscon(discon AttributeDisCon) *DisclosureRequestBuilder {
	b.addDiscon(discon)
	return b
}

// AddDiscons adds the specified disjunctions to the request, in order.
func (b *DisclosureRequestBuilder) AddDiscons(discons ...AttributeDisCon) *DisclosureRequestBuilder {
	b.addDiscons(discons)
	return b
}

// AddDisconWithLabel adds a disjunction to the request, labeled with the specified label.
func (b *DisclosureRequestBuilder) AddDisconWithLabel(discon AttributeDisCon, label TranslatedString) *DisclosureRequestBuilder {
	b.addDisconWithLabel(discon, label)
	return b
}

// ReturnURL sets the URL to which the IRMA app returns the user after the session.
func (b *DisclosureRequestBuilder) ReturnURL(url string) *DisclosureRequestBuilder {
	b.returnURL(url, false)
	return b
}

// AugmentedReturnURL sets the return URL, and has the IRMA server append the session token to it.
func (b *DisclosureRequestBuilder) AugmentedReturnURL(url string) *DisclosureRequestBuilder {
	b.returnURL(url, true)
	return b
}

// Build returns the disclosure request, or an error if it contains no disjunctions.
func (b *DisclosureRequestBuilder) Build() (*DisclosureRequest, error) {
	request := &DisclosureRequest{LDContext: LDContextDisclosureRequest, BaseRequest: b.snapshot()}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return request, nil
}

// SignatureRequestBuilder constructs a SignatureRequest.
type SignatureRequestBuilder struct {
	baseRequestBuilder
	message string
}

// NewSignatureRequestBuilder returns a SignatureRequestBuilder for the specified message.
func NewSignatureRequestBuilder(message string) *SignatureRequestBuilder {
	return &SignatureRequestBuilder{message: message}
}

// AddDiscon adds a disjunction to the request.
func (b *SignatureRequestBuilder) AddDiscon(discon AttributeDisCon) *SignatureRequestBuilder {
	b.addDiscon(discon)
	return b
}

// AddDiscons adds the specified disjunctions to the request, in order.
func (b *SignatureRequestBuilder) AddDiscons(discons ...AttributeDisCon) *SignatureRequestBuilder {
	b.addDiscons(discons)
	return b
}

// AddDisconWithLabel adds a disjunction to the request, labeled with the specified label.
func (b *SignatureRequestBuilder) AddDisconWithLabel(discon AttributeDisCon, label TranslatedString) *SignatureRequestBuilder {
	b.addDisconWithLabel(discon, label)
	return b
}

// ReturnURL sets the URL to which the IRMA app returns the user after the session.
func (b *SignatureRequestBuilder) ReturnURL(url string) *SignatureRequestBuilder {
	b.returnURL(url, false)
	return b
}

// AugmentedReturnURL sets the return URL, and has the IRMA server append the session token to it.
func (b *SignatureRequestBuilder) AugmentedReturnURL(url string) *SignatureRequestBuilder {
	b.returnURL(url, true)
	return b
}

// Build returns the signature request, or an error if it contains no disjunctions.
func (b *SignatureRequestBuilder) Build() (*SignatureRequest, error) {
	request := &SignatureRequest{
		LDContext:   LDContextSignatureRequest,
		Message:     b.message,
		BaseRequest: b.snapshot(),
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return request, nil
}

// IssuanceRequestBuilder constructs an IssuanceRequest.
type IssuanceRequestBuilder struct {
	baseRequestBuilder
	credentials []*CredentialRequest
}

// NewIssuanceRequestBuilder returns an empty IssuanceRequestBuilder.
func NewIssuanceRequestBuilder() *IssuanceRequestBuilder {
	return &IssuanceRequestBuilder{}
}

// AddCredential adds a credential to be issued.
func (b *IssuanceRequestBuilder) AddCredential(cred *CredentialRequest) *IssuanceRequestBuilder {
	b.credentials = append(b.credentials, cred)
	return b
}

// AddDiscon adds a disjunction to be disclosed during issuance.
func (b *IssuanceRequestBuilder) AddDiscon(discon AttributeDisCon) *IssuanceRequestBuilder {
	b.addDiscon(discon)
	return b
}

// AddDiscons adds the specified disjunctions to be disclosed during issuance, in order.
func (b *IssuanceRequestBuilder) AddDiscons(discons ...AttributeDisCon) *IssuanceRequestBuilder {
	b.addDiscons(discons)
	return b
}

// AddDisconWithLabel adds a disjunction to be disclosed during issuance, labeled with the specified label.
func (b *IssuanceRequestBuilder) AddDisconWithLabel(discon AttributeDisCon, label TranslatedString) *IssuanceRequestBuilder {
	b.addDisconWithLabel(discon, label)
	return b
}

// ReturnURL sets the URL to which the IRMA app returns the user after the session.
func (b *IssuanceRequestBuilder) ReturnURL(url string) *IssuanceRequestBuilder {
	b.returnURL(url, false)
	return b
}

// AugmentedReturnURL sets the return URL, and has the IRMA server append the session token to it.
func (b *IssuanceRequestBuilder) AugmentedReturnURL(url string) *IssuanceRequestBuilder {
	b.returnURL(url, true)
	return b
}

// Build returns the issuance request, or an error if it contains no credentials.
func (b *IssuanceRequestBuilder) Build() (*IssuanceRequest, error) {
	request := &IssuanceRequest{
		LDContext:   LDContextIssuanceRequest,
		Credentials: append([]*CredentialRequest(nil), b.credentials...),
		BaseRequest: b.snapshot(),
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return request, nil
}

package irma

import (
	"encoding/json"
	"strconv"
	"time"
)

// Timestamp is a time.Time that marshals to Unix timestamps.
type Timestamp time.Time

// A CredentialRequest contains the attributes and metadata of a credential
// that will be issued in an IssuanceRequest.
type CredentialRequest struct {
	CredentialTypeID CredentialTypeIdentifier `json:"credential"`
	// Until when the credential is valid. The IRMA server rounds this down to the nearest epoch
	// boundary; when absent, the server applies its default validity.
	Validity   *Timestamp        `json:"validity,omitempty"`
	Attributes map[string]string `json:"attributes"`
}

// CredentialBuilder constructs a CredentialRequest.
type CredentialBuilder struct {
	cred *CredentialRequest
}

// MarshalJSON marshals a timestamp.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalJSON unmarshals a timestamp.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var ts int64
	if err := json.Unmarshal(b, &ts); err != nil {
		return err
	}
	*t = Timestamp(time.Unix(ts, 0))
	return nil
}

// Timestamp implements Stringer.
func (t Timestamp) String() string {
	return strconv.FormatInt(time.Time(t).Unix(), 10)
}

// Floor returns the timestamp truncated to whole seconds.
func (t Timestamp) Floor() Timestamp {
	return Timestamp(time.Unix(time.Time(t).Unix(), 0))
}

func (t Timestamp) After(u Timestamp) bool {
	return time.Time(t).After(time.Time(u))
}

// NewCredentialBuilder returns a builder for a credential of the specified type.
func NewCredentialBuilder(id CredentialTypeIdentifier) *CredentialBuilder {
	return &CredentialBuilder{cred: &CredentialRequest{
		CredentialTypeID: id,
		Attributes:       map[string]string{},
	}}
}

// Attribute sets the value of the named attribute, overwriting any earlier value.
func (b *CredentialBuilder) Attribute(name, value string) *CredentialBuilder {
	b.cred.Attributes[name] = value
	return b
}

// ValidityPeriod makes the credential valid until the specified duration from now.
func (b *CredentialBuilder) ValidityPeriod(period time.Duration) *CredentialBuilder {
	// rounding is left to the server
	validity := Timestamp(time.Now().Add(period)).Floor()
	b.cred.Validity = &validity
	return b
}

// Validity makes the credential valid until the specified moment.
func (b *CredentialBuilder) Validity(t time.Time) *CredentialBuilder {
	validity := Timestamp(t).Floor()
	b.cred.Validity = &validity
	return b
}

// Build returns the credential request. The builder must not be used afterwards.
func (b *CredentialBuilder) Build() *CredentialRequest {
	return b.cred
}

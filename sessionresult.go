package irma

import (
	"encoding/json"

	"github.com/go-errors/errors"
)

// Action encodes the session type of an IRMA session (e.g., disclosing).
type Action string

// ServerStatus is the status of an IRMA session as reported by the IRMA server.
type ServerStatus string

// ProofStatus is the status of the proof of a session: whether it was cryptographically valid
// and matched the session request.
type ProofStatus string

// AttributeProofStatus is the status of a single disclosed attribute.
type AttributeProofStatus string

// RequestorToken identifies a session at the IRMA server. It is assigned by the server when the
// session is started, and used in all subsequent calls concerning the session.
type RequestorToken string

// Actions
const (
	ActionDisclosing = Action("disclosing")
	ActionSigning    = Action("signing")
	ActionIssuing    = Action("issuing")
)

const (
	ServerStatusInitialized ServerStatus = "INITIALIZED" // The session has been started and is waiting for the client
	ServerStatusPairing     ServerStatus = "PAIRING"     // The client is waiting for the frontend to give permission to connect
	ServerStatusConnected   ServerStatus = "CONNECTED"   // The client has retrieved the session request, we wait for its response
	ServerStatusCancelled   ServerStatus = "CANCELLED"   // The session is cancelled, possibly due to an error
	ServerStatusDone        ServerStatus = "DONE"        // The session has completed successfully
	ServerStatusTimeout     ServerStatus = "TIMEOUT"     // Session timed out
)

const (
	ProofStatusValid             = ProofStatus("VALID")              // Proof is valid
	ProofStatusInvalid           = ProofStatus("INVALID")            // Proof is invalid
	ProofStatusInvalidTimestamp  = ProofStatus("INVALID_TIMESTAMP")  // Attribute-based signature had invalid timestamp
	ProofStatusUnmatchedRequest  = ProofStatus("UNMATCHED_REQUEST")  // Proof does not correspond to a specified request
	ProofStatusMissingAttributes = ProofStatus("MISSING_ATTRIBUTES") // Proof does not contain all requested attributes
	ProofStatusExpired           = ProofStatus("EXPIRED")            // Attributes were expired at proof creation time (now, or according to timestamp in case of abs)
)

const (
	AttributeProofStatusPresent = AttributeProofStatus("PRESENT") // Attribute is disclosed and matches the value
	AttributeProofStatusExtra   = AttributeProofStatus("EXTRA")   // Attribute is disclosed, but wasn't requested in request
	AttributeProofStatusNull    = AttributeProofStatus("NULL")    // Attribute is disclosed but is null
)

var (
	actions               = []Action{ActionDisclosing, ActionSigning, ActionIssuing}
	serverStatuses        = []ServerStatus{ServerStatusInitialized, ServerStatusPairing, ServerStatusConnected, ServerStatusCancelled, ServerStatusDone, ServerStatusTimeout}
	proofStatuses         = []ProofStatus{ProofStatusValid, ProofStatusInvalid, ProofStatusInvalidTimestamp, ProofStatusUnmatchedRequest, ProofStatusMissingAttributes, ProofStatusExpired}
	attributeProofStatues = []AttributeProofStatus{AttributeProofStatusPresent, AttributeProofStatusExtra, AttributeProofStatusNull}
)

// Qr points the IRMA app to a session. It is usually shown to the user as a QR code.
type Qr struct {
	// Server with which to perform the session
	URL string `json:"u"`
	// Session type (disclosing, signing, issuing)
	Type Action `json:"irmaqr"`
}

// FrontendSessionRequest contains the data a frontend (e.g. the irma-frontend JavaScript library)
// needs to manage the session at the IRMA server on behalf of the requestor.
type FrontendSessionRequest struct {
	Authorization      string `json:"authorization,omitempty"`
	MinProtocolVersion string `json:"minProtocolVersion,omitempty"`
	MaxProtocolVersion string `json:"maxProtocolVersion,omitempty"`
}

// SessionPackage is returned by the IRMA server when a session is started.
type SessionPackage struct {
	SessionPtr      *Qr                     `json:"sessionPtr"`
	Token           RequestorToken          `json:"token"`
	FrontendRequest *FrontendSessionRequest `json:"frontendRequest,omitempty"`
}

// DisclosedAttribute represents a disclosed attribute.
type DisclosedAttribute struct {
	RawValue   *string                 `json:"rawvalue,omitempty"`
	Value      TranslatedString        `json:"value,omitempty"` // Value of the disclosed attribute
	Identifier AttributeTypeIdentifier `json:"id"`
	Status     AttributeProofStatus    `json:"status"`
}

// SessionResult contains session information such as the session status, type, possible errors,
// and disclosed attributes or attribute-based signature if appropriate to the session type.
// An empty but non-nil Disclosed is omitted when marshaling, and so unmarshals to nil.
type SessionResult struct {
	Token       RequestorToken          `json:"token"`
	Type        Action                  `json:"type"`
	Status      ServerStatus            `json:"status"`
	ProofStatus ProofStatus             `json:"proofStatus,omitempty"`
	Disclosed   [][]*DisclosedAttribute `json:"disclosed,omitempty"`
	NextSession RequestorToken          `json:"nextSession,omitempty"`

	// The attribute-based signature, in signing sessions. It is passed along as is.
	Signature json.RawMessage `json:"signature,omitempty"`
	Err       *RemoteError    `json:"error,omitempty"`
}

// Finished returns true if the status is one of the final statuses: DONE, CANCELLED or TIMEOUT.
func (status ServerStatus) Finished() bool {
	return status == ServerStatusDone || status == ServerStatusCancelled || status == ServerStatusTimeout
}

func (status *ServerStatus) UnmarshalText(text []byte) error {
	return unmarshalEnum(text, status, serverStatuses)
}

func (action *Action) UnmarshalText(text []byte) error {
	return unmarshalEnum(text, action, actions)
}

func (ps *ProofStatus) UnmarshalText(text []byte) error {
	return unmarshalEnum(text, ps, proofStatuses)
}

func (aps *AttributeProofStatus) UnmarshalText(text []byte) error {
	return unmarshalEnum(text, aps, attributeProofStatues)
}

func unmarshalEnum[T ~string](text []byte, dst *T, valid []T) error {
	val := T(text)
	for _, v := range valid {
		if v == val {
			*dst = val
			return nil
		}
	}
	return errors.Errorf("unknown value %q", string(text))
}

// Disclosures returns the disclosed attributes of the specified attribute type, in order of
// appearance, across all disjunctions.
func (sr *SessionResult) Disclosures(id AttributeTypeIdentifier) []*DisclosedAttribute {
	var list []*DisclosedAttribute
	for _, con := range sr.Disclosed {
		for _, attr := range con {
			if attr != nil && attr.Identifier == id {
				list = append(list, attr)
			}
		}
	}
	return list
}

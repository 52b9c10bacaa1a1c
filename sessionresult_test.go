package irma

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeSessionResult(t *testing.T) {
	var result SessionResult
	require.NoError(t, json.Unmarshal([]byte(`{
		"type" : "disclosing",
		"status" : "DONE",
		"disclosed" : [
		  [{
			"status" : "PRESENT",
			"rawvalue" : "yes",
			"id" : "irma-demo.MijnOverheid.ageLower.over18",
			"value" : {
			  "en" : "yes",
			  "nl" : "yes",
			  "" : "yes"
			}
		  }]
		],
		"proofStatus" : "VALID",
		"token" : "ELMExi5iauWYHzbH7gwU"
	}`), &result))

	yes := "yes"
	require.Equal(t, SessionResult{
		Token:       "ELMExi5iauWYHzbH7gwU",
		Type:        ActionDisclosing,
		Status:      ServerStatusDone,
		ProofStatus: ProofStatusValid,
		Disclosed: [][]*DisclosedAttribute{{{
			RawValue:   &yes,
			Value:      TranslatedString{"en": "yes", "nl": "yes", "": "yes"},
			Identifier: NewAttributeTypeIdentifier("irma-demo.MijnOverheid.ageLower.over18"),
			Status:     AttributeProofStatusPresent,
		}}},
	}, result)

	result = SessionResult{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"type" : "disclosing",
		"status" : "CONNECTED",
		"token" : "ELMExi5iauWYHzbH7gwU"
	}`), &result))
	require.Equal(t, ServerStatusConnected, result.Status)
	require.Empty(t, result.Disclosed)
	require.Equal(t, ProofStatus(""), result.ProofStatus)
}

func TestSessionResultRoundTrip(t *testing.T) {
	value := "test@example.com"
	attr := func(status AttributeProofStatus, raw *string) *DisclosedAttribute {
		a := &DisclosedAttribute{
			Identifier: NewAttributeTypeIdentifier("pbdf.sidn-pbdf.email.email"),
			Status:     status,
			RawValue:   raw,
		}
		if raw != nil {
			a.Value = NewTranslatedString(*raw, *raw)
		}
		return a
	}

	for _, status := range serverStatuses {
		for _, proofStatus := range append(proofStatuses, "") {
			for _, attrStatus := range attributeProofStatues {
				raw := &value
				if attrStatus == AttributeProofStatusNull {
					raw = nil
				}
				result := &SessionResult{
					Token:       "T1",
					Type:        ActionDisclosing,
					Status:      status,
					ProofStatus: proofStatus,
					Disclosed:   [][]*DisclosedAttribute{{attr(attrStatus, raw)}},
				}
				require.Equal(t, result, roundTrip(t, result, &SessionResult{}))
			}
		}
	}

	signed := &SessionResult{
		Token:       "T2",
		Type:        ActionSigning,
		Status:      ServerStatusDone,
		ProofStatus: ProofStatusValid,
		NextSession: "T3",
		Signature:   json.RawMessage(`{"@context":"https://irma.app/ld/signature/v2","message":"m"}`),
	}
	require.Equal(t, signed, roundTrip(t, signed, &SessionResult{}))
}

func TestSessionResultEmptyDisclosed(t *testing.T) {
	result := &SessionResult{
		Token:     "T1",
		Type:      ActionDisclosing,
		Status:    ServerStatusDone,
		Disclosed: [][]*DisclosedAttribute{},
	}
	bts, err := json.Marshal(result)
	require.NoError(t, err)
	require.NotContains(t, string(bts), "disclosed")

	decoded := &SessionResult{}
	require.NoError(t, json.Unmarshal(bts, decoded))
	require.Nil(t, decoded.Disclosed)
	result.Disclosed = nil
	require.Equal(t, result, decoded)
}

func TestSessionResultUnknownEnums(t *testing.T) {
	var result SessionResult
	require.Error(t, json.Unmarshal([]byte(`{"type":"disclosing","status":"FINISHED","token":"T"}`), &result))
	require.Error(t, json.Unmarshal([]byte(`{"type":"revoking","status":"DONE","token":"T"}`), &result))
	require.Error(t, json.Unmarshal([]byte(`{"type":"disclosing","status":"DONE","proofStatus":"GOOD","token":"T"}`), &result))
	require.Error(t, json.Unmarshal([]byte(`{"type":"disclosing","status":"DONE","token":"T","disclosed":[[{"id":"a.b.c.d","status":"ABSENT"}]]}`), &result))
}

func TestServerStatusFinished(t *testing.T) {
	finished := map[ServerStatus]bool{
		ServerStatusInitialized: false,
		ServerStatusPairing:     false,
		ServerStatusConnected:   false,
		ServerStatusCancelled:   true,
		ServerStatusDone:        true,
		ServerStatusTimeout:     true,
	}
	for status, expected := range finished {
		require.Equal(t, expected, status.Finished(), status)
	}
}

func TestSessionPackage(t *testing.T) {
	var pkg SessionPackage
	require.NoError(t, json.Unmarshal([]byte(`{"sessionPtr":{"u":"https://irma.example.com/irma/session/abc","irmaqr":"disclosing"},"token":"T1"}`), &pkg))
	require.Equal(t, RequestorToken("T1"), pkg.Token)
	require.Equal(t, &Qr{URL: "https://irma.example.com/irma/session/abc", Type: ActionDisclosing}, pkg.SessionPtr)
	require.Nil(t, pkg.FrontendRequest)
}

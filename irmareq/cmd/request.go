package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	irma "github.com/privacybydesign/irmarequestor"
	"github.com/privacybydesign/irmarequestor/requestor"
)

// requestCmd represents the request command
var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Generate an IRMA session request",
	Long: `Generate an IRMA session request and print it. When authenticating to the IRMA server
with hmac or rsa, the request is printed as the signed JWT that would be sent to the server.`,
	Example: `irmareq request --disclose pbdf.sidn-pbdf.email.email
irmareq request --sign pbdf.sidn-pbdf.email.email --message "I owe you"
irmareq request -a hmac --name myapp --key-file key.b64 --issue irma-demo.MijnOverheid.root=BSN:12345`,
	Run: func(cmd *cobra.Command, args []string) {
		request, err := constructRequest(cmd.Flags())
		if err != nil {
			die("", err)
		}

		client := configureClient()
		switch client.AuthMethod() {
		case requestor.AuthMethodHmac, requestor.AuthMethodRSA:
			signed, err := client.SignRequest(request)
			if err != nil {
				die("Failed to sign request", err)
			}
			fmt.Println(signed)
		default:
			fmt.Println(prettyprint(request))
		}
	},
}

func init() {
	RootCmd.AddCommand(requestCmd)

	flags := requestCmd.Flags()
	flags.SortFlags = false
	addRequestFlags(flags)
}

func addRequestFlags(flags *pflag.FlagSet) {
	flags.StringArray("disclose", nil, "Add an attribute disjunction (comma-separated)")
	flags.StringArray("sign", nil, "Add an attribute disjunction to signature session")
	flags.String("message", "", "Message to sign in signature session")
	flags.StringArray("issue", nil, "Add a credential to issue (credtype=attr:value,attr:value)")
	flags.Duration("credential-validity", 0, "Validity period of issued credentials (default: server default)")
	flags.StringArray("label", nil, "Label a disjunction (index=text)")
	flags.String("return-url", "", "URL to which the IRMA app returns the user after the session")
	flags.Bool("augment-return-url", false, "Have the IRMA server append the session token to the return URL")
	flags.String("request", "", "JSON session request or extended session request")

	flags.Int("validity", 0, "Validity of the session result JWT in seconds")
	flags.Int("timeout", 0, "Seconds the IRMA server waits for the IRMA app to connect")
	flags.String("callback-url", "", "URL to which the IRMA server posts the session result")
	flags.String("next-session", "", "URL from which the IRMA server fetches the request of a chained session")
}

var errRequestFlags = errors.New("Provide either a complete session request using --request or construct one using the other flags")

// constructRequest assembles the session request described by the request flags.
func constructRequest(flags *pflag.FlagSet) (*irma.RequestorRequest, error) {
	disclose, _ := flags.GetStringArray("disclose")
	issue, _ := flags.GetStringArray("issue")
	sign, _ := flags.GetStringArray("sign")
	message, _ := flags.GetString("message")
	jsonrequest, _ := flags.GetString("request")

	if len(disclose) == 0 && len(issue) == 0 && len(sign) == 0 && message == "" {
		if jsonrequest == "" {
			return nil, errRequestFlags
		}
		return irma.ParseRequestorRequest([]byte(jsonrequest))
	}
	if jsonrequest != "" {
		return nil, errRequestFlags
	}

	if len(sign) != 0 {
		if len(disclose) != 0 {
			return nil, errors.New("cannot combine disclosure and signature sessions, use either --disclose or --sign")
		}
		if len(issue) != 0 {
			return nil, errors.New("cannot combine issuance and signature sessions, use either --issue or --sign")
		}
		if message == "" {
			return nil, errors.New("signature sessions require a message to be signed using --message")
		}
	} else if message != "" {
		return nil, errors.New("--message requires a signature session, add attributes using --sign")
	}

	labelStrs, _ := flags.GetStringArray("label")
	labels, err := parseLabels(labelStrs)
	if err != nil {
		return nil, err
	}
	returnURL, _ := flags.GetString("return-url")
	augment, _ := flags.GetBool("augment-return-url")
	if augment && returnURL == "" {
		return nil, errors.New("--augment-return-url requires --return-url")
	}
	opts := builderOptions{labels: labels, returnURL: returnURL, augment: augment}

	var request irma.SessionRequest
	switch {
	case len(sign) != 0:
		if opts.discons, err = parseAttrs(sign); err != nil {
			return nil, err
		}
		request, err = configureBuilder(irma.NewSignatureRequestBuilder(message), opts).Build()
	case len(issue) != 0:
		var creds []*irma.CredentialRequest
		validity, _ := flags.GetDuration("credential-validity")
		if creds, err = parseCredentials(issue, validity); err != nil {
			return nil, err
		}
		if opts.discons, err = parseAttrs(disclose); err != nil {
			return nil, err
		}
		b := irma.NewIssuanceRequestBuilder()
		for _, cred := range creds {
			b.AddCredential(cred)
		}
		request, err = configureBuilder(b, opts).Build()
	default:
		if opts.discons, err = parseAttrs(disclose); err != nil {
			return nil, err
		}
		request, err = configureBuilder(irma.NewDisclosureRequestBuilder(), opts).Build()
	}
	if err != nil {
		return nil, err
	}
	for i := range labels {
		if i < 0 || i >= len(request.Base().Disclose) {
			return nil, errors.Errorf("--label refers to nonexisting disjunction %d", i)
		}
	}

	rrequest := &irma.RequestorRequest{Request: request}
	rrequest.ResultJwtValidity, _ = flags.GetInt("validity")
	rrequest.ClientTimeout, _ = flags.GetInt("timeout")
	rrequest.CallbackURL, _ = flags.GetString("callback-url")
	if next, _ := flags.GetString("next-session"); next != "" {
		rrequest.NextSession = &irma.NextSessionData{URL: next}
	}
	if err = rrequest.Validate(); err != nil {
		return nil, err
	}
	return rrequest, nil
}

type builderOptions struct {
	discons   irma.AttributeConDisCon
	labels    map[int]irma.TranslatedString
	returnURL string
	augment   bool
}

// requestBuilder is implemented by the builders of all session request types.
type requestBuilder[B any] interface {
	AddDiscon(discon irma.AttributeDisCon) B
	AddDisconWithLabel(discon irma.AttributeDisCon, label irma.TranslatedString) B
	ReturnURL(url string) B
	AugmentedReturnURL(url string) B
}

func configureBuilder[B requestBuilder[B]](b B, opts builderOptions) B {
	for i, discon := range opts.discons {
		if label, ok := opts.labels[i]; ok {
			b.AddDisconWithLabel(discon, label)
		} else {
			b.AddDiscon(discon)
		}
	}
	switch {
	case opts.augment:
		b.AugmentedReturnURL(opts.returnURL)
	case opts.returnURL != "":
		b.ReturnURL(opts.returnURL)
	}
	return b
}

func parseCredentials(credentialsStr []string, validity time.Duration) ([]*irma.CredentialRequest, error) {
	list := make([]*irma.CredentialRequest, 0, len(credentialsStr))
	for _, credStr := range credentialsStr {
		credIdStr, attrsStr, found := strings.Cut(credStr, "=")
		if !found || credIdStr == "" {
			return nil, errors.Errorf("--issue argument %q must be of the form credtype=attr:value,...", credStr)
		}
		b := irma.NewCredentialBuilder(irma.NewCredentialTypeIdentifier(credIdStr))
		for _, attrStr := range strings.Split(attrsStr, ",") {
			name, value, found := strings.Cut(attrStr, ":")
			if !found || name == "" {
				return nil, errors.Errorf("attribute %q of %s must be of the form attr:value", attrStr, credIdStr)
			}
			b.Attribute(name, value)
		}
		if validity > 0 {
			b.ValidityPeriod(validity)
		}
		list = append(list, b.Build())
	}
	return list, nil
}

func parseAttrs(attrsStr []string) (irma.AttributeConDisCon, error) {
	list := make(irma.AttributeConDisCon, 0, len(attrsStr))
	for _, disjunctionStr := range attrsStr {
		disjunction := irma.AttributeDisCon{}
		for _, attridStr := range strings.Split(disjunctionStr, ",") {
			attrid := irma.NewAttributeTypeIdentifier(attridStr)
			if strings.Count(attridStr, ".") != 3 {
				return nil, errors.New("invalid attribute identifier: " + attridStr)
			}
			disjunction = append(disjunction, irma.AttributeCon{irma.AttributeRequest{Type: attrid}})
		}
		list = append(list, disjunction)
	}
	return list, nil
}

func parseLabels(labelsStr []string) (map[int]irma.TranslatedString, error) {
	if len(labelsStr) == 0 {
		return nil, nil
	}
	labels := make(map[int]irma.TranslatedString, len(labelsStr))
	for _, labelStr := range labelsStr {
		indexStr, text, found := strings.Cut(labelStr, "=")
		if !found {
			return nil, errors.Errorf("--label argument %q must be of the form index=text", labelStr)
		}
		index, err := strconv.Atoi(indexStr)
		if err != nil {
			return nil, errors.WrapPrefix(err, "invalid label index", 0)
		}
		labels[index] = irma.NewTranslatedString(text, text)
	}
	return labels, nil
}

package requestor

import (
	"github.com/go-errors/errors"
	"github.com/golang-jwt/jwt/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"

	"github.com/privacybydesign/irmarequestor/internal/common"
)

// Configuration contains everything needed to construct a Client.
type Configuration struct {
	// URL of the IRMA server
	URL string `json:"url" mapstructure:"url"`
	// Authentication method: none, token, hmac or rsa
	AuthMethod AuthMethod `json:"auth_method" mapstructure:"auth_method"`
	// Token (token), base64 encoded HMAC key (hmac) or PEM encoded private key (rsa)
	Key Secret `json:"key,omitempty" mapstructure:"key"`
	// File from which to read Key
	KeyFile string `json:"key_file,omitempty" mapstructure:"key_file"`
	// Requestor name, sent as JWT issuer (hmac and rsa)
	Name string `json:"name,omitempty" mapstructure:"name"`
}

// ConfigurationFromMap decodes a Configuration from the specified map, whose keys are the
// mapstructure tags of the Configuration fields. Unknown keys are rejected.
func ConfigurationFromMap(m map[string]interface{}) (*Configuration, error) {
	conf := &Configuration{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           conf,
	})
	if err != nil {
		return nil, err
	}
	if err = decoder.Decode(m); err != nil {
		return nil, errors.WrapPrefix(err, "failed to decode requestor configuration", 0)
	}
	return conf, nil
}

// Validate checks the configuration for consistency.
func (conf *Configuration) Validate() error {
	var err error
	if conf.URL == "" {
		err = multierror.Append(err, errors.New("no IRMA server URL configured"))
	}
	switch conf.method() {
	case AuthMethodNone:
		if conf.Key != "" || conf.KeyFile != "" {
			err = multierror.Append(err, errors.New("key specified but authentication method is none"))
		}
	case AuthMethodToken, AuthMethodHmac, AuthMethodRSA:
		if (conf.Key == "") == (conf.KeyFile == "") {
			err = multierror.Append(err, errors.Errorf("authentication method %s requires either key or key_file", conf.AuthMethod))
		}
		if conf.method() != AuthMethodToken && conf.Name == "" {
			err = multierror.Append(err, errors.Errorf("authentication method %s requires a requestor name", conf.AuthMethod))
		}
	default:
		err = multierror.Append(err, errors.Errorf("unsupported authentication method %q", conf.AuthMethod))
	}
	return err
}

func (conf *Configuration) method() AuthMethod {
	if conf.AuthMethod == "" {
		return AuthMethodNone
	}
	return conf.AuthMethod
}

// Client validates the configuration and returns a Client configured accordingly.
func (conf *Configuration) Client() (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	b, err := NewBuilder(conf.URL)
	if err != nil {
		return nil, err
	}
	if conf.method() == AuthMethodNone {
		return b.Build(), nil
	}

	bts, err := common.ReadKey(string(conf.Key), conf.KeyFile)
	if err != nil {
		return nil, err
	}
	switch conf.method() {
	case AuthMethodToken:
		b.TokenAuthentication(string(bts))
	case AuthMethodHmac:
		key, err := common.Base64Decode(bts)
		if err != nil {
			return nil, errors.WrapPrefix(err, "failed to decode hmac key", 0)
		}
		b.HMACAuthentication(conf.Name, key)
	case AuthMethodRSA:
		key, err := jwt.ParseRSAPrivateKeyFromPEM(bts)
		if err != nil {
			return nil, errors.WrapPrefix(err, "failed to parse rsa key", 0)
		}
		b.RSAAuthentication(conf.Name, key)
	}
	return b.Build(), nil
}

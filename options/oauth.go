package options

import (
	"fmt"

	"edgetun/internal/proto"
)

// OAuthProvider is an identity provider the edge can delegate logins to.
type OAuthProvider int

const (
	Amazon OAuthProvider = iota
	Facebook
	GitHub
	GitLab
	Google
	LinkedIn
	Microsoft
	Twitch
)

var oauthProviderNames = [...]string{
	Amazon:    "amazon",
	Facebook:  "facebook",
	GitHub:    "github",
	GitLab:    "gitlab",
	Google:    "google",
	LinkedIn:  "linkedin",
	Microsoft: "microsoft",
	Twitch:    "twitch",
}

// String returns the provider identifier used on the wire.
func (p OAuthProvider) String() string {
	if p < 0 || int(p) >= len(oauthProviderNames) {
		return fmt.Sprintf("OAuthProvider(%d)", int(p))
	}
	return oauthProviderNames[p]
}

// ParseOAuthProvider maps a wire identifier back to a provider.
func ParseOAuthProvider(s string) (OAuthProvider, error) {
	for i, name := range oauthProviderNames {
		if name == s {
			return OAuthProvider(i), nil
		}
	}
	return 0, fmt.Errorf("unknown oauth provider %q", s)
}

// OAuthOptions configures OAuth login in front of an HTTP endpoint.
// The provider is fixed by NewOAuthOptions.
type OAuthOptions struct {
	provider OAuthProvider

	// The client ID and secret of a custom OAuth app, if one is used.
	clientID     string
	clientSecret proto.SecretString

	allowEmails  []string
	allowDomains []string
	scopes       []string
}

// NewOAuthOptions starts an OAuth configuration for provider.
func NewOAuthOptions(provider OAuthProvider) *OAuthOptions {
	return &OAuthOptions{provider: provider}
}

// String names the provider only; the client secret is never rendered.
// The value receiver keeps %v and %+v on an OAuthOptions value from
// walking the unexported fields.
func (o OAuthOptions) String() string {
	return fmt.Sprintf("oauth(%s)", o.provider)
}

// Provider returns the configured identity provider.
func (o *OAuthOptions) Provider() OAuthProvider { return o.provider }

// ClientID sets the client ID of a custom OAuth app.
func (o *OAuthOptions) ClientID(id string) *OAuthOptions {
	o.clientID = id
	return o
}

// ClientSecret sets the client secret of a custom OAuth app.
func (o *OAuthOptions) ClientSecret(secret string) *OAuthOptions {
	o.clientSecret = proto.NewSecretString(secret)
	return o
}

// AllowEmail appends an email address allowed to log in.
func (o *OAuthOptions) AllowEmail(email string) *OAuthOptions {
	o.allowEmails = append(o.allowEmails, email)
	return o
}

// AllowDomain appends an email domain allowed to log in.
func (o *OAuthOptions) AllowDomain(domain string) *OAuthOptions {
	o.allowDomains = append(o.allowDomains, domain)
	return o
}

// Scope appends a scope to request from the provider.
func (o *OAuthOptions) Scope(scope string) *OAuthOptions {
	o.scopes = append(o.scopes, scope)
	return o
}

// ToProto copies the options into the wire format.
func (o *OAuthOptions) ToProto() *proto.Oauth {
	return &proto.Oauth{
		Provider:     o.provider.String(),
		ClientID:     o.clientID,
		ClientSecret: o.clientSecret,
		AllowEmails:  cloneStrings(o.allowEmails),
		AllowDomains: cloneStrings(o.allowDomains),
		Scopes:       cloneStrings(o.scopes),
	}
}

// Clone returns an independent copy.
func (o *OAuthOptions) Clone() *OAuthOptions {
	if o == nil {
		return nil
	}
	return &OAuthOptions{
		provider:     o.provider,
		clientID:     o.clientID,
		clientSecret: o.clientSecret,
		allowEmails:  cloneStrings(o.allowEmails),
		allowDomains: cloneStrings(o.allowDomains),
		scopes:       cloneStrings(o.scopes),
	}
}

package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hubbub-chat/hubbub/config"
	"github.com/hubbub-chat/hubbub/globals"
)

// Authenticate verifies a given OIDC ID-Token using the configured OIDC
// provider. It returns the token's e-mail claim if verification was
// successful (or an empty string if no provider was configured). A connection
// arriving with a verified e-mail is pre-bound to the chat identity of the
// same name, skipping the /nick claim flow.
func Authenticate(idToken, oidcProvider string, cfg *config.Config) (string, error) {
	if idToken == "" || len(cfg.OIDCConfigs) == 0 {
		return "", nil
	}
	var oidcConf *config.OIDCConfig
	for _, c := range cfg.OIDCConfigs {
		if c.Name == oidcProvider {
			oidcConf = &c
			break
		}
	}
	if oidcConf == nil {
		globals.AppLogger.Debug("no oidc config found for provider", "provider", oidcProvider)
		return "", nil
	}
	provider, err := oidc.NewProvider(context.Background(), oidcConf.ProviderUrl)
	if err != nil {
		return "", err
	}
	conf := oidc.Config{}
	if oidcConf.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = oidcConf.ClientId
	}
	verifier := provider.Verifier(&conf)
	verifiedIdToken, err := verifier.Verify(context.Background(), idToken)
	if err != nil {
		globals.AppLogger.Error("could not verify token", "error", err)
		return "", err
	}

	claims := struct {
		Email string `json:"email"`
	}{}
	err = verifiedIdToken.Claims(&claims)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

// 參考https://auth0.com/docs/get-started/apis/scopes/openid-connect-scopes
package oidc

import "github.com/coreos/go-oidc/v3/oidc"

type Claims struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`

	internal *oidc.IDToken
}

func (c *Claims) Raw(v any) error {
	return c.internal.Claims(v)
}

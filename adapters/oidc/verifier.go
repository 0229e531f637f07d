package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier 用於驗證外部身份提供者簽發的 access token
// 本服務不負責登入流程，只檢查 token 是否由信任的 issuer 簽發且尚未過期
type Verifier struct {
	idTokenVerifier *oidc.IDTokenVerifier
}

func NewVerifier(ctx context.Context, issuerURL, clientID string) (*Verifier, error) {
	const op = "NewVerifier"
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create provider, err=%w", op, err)
	}
	return &Verifier{
		idTokenVerifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Verify 驗證 token 的有效性，並返回解析後的 claims
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	const op = "Verify"
	idToken, err := v.idTokenVerifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	claims := Claims{internal: idToken}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse claims, err=%w", op, err)
	}
	return &claims, nil
}

package idtoken

import (
	"errors"
	"strings"

	verifier "github.com/futurenda/google-auth-id-token-verifier"
)

var (
	ErrDisabled     = errors.New("Google 登录未启用")
	ErrInvalidToken = errors.New("Google ID Token 无效")
)

// Identity 从 Google ID Token 中解析出的身份信息
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Verifier 外部身份令牌校验接口
type Verifier interface {
	Verify(idToken string) (*Identity, error)
}

// GoogleVerifier 使用 Google 公钥校验 ID Token 的签名、受众与有效期
type GoogleVerifier struct {
	clientID string
}

// NewGoogleVerifier 创建 Google 校验器；clientID 为空时所有校验返回 ErrDisabled
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID}
}

// Verify 校验并解码 ID Token
func (g *GoogleVerifier) Verify(idToken string) (*Identity, error) {
	if g.clientID == "" {
		return nil, ErrDisabled
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidToken
	}

	v := verifier.Verifier{}
	if err := v.VerifyIDToken(idToken, []string{g.clientID}); err != nil {
		return nil, ErrInvalidToken
	}

	claimSet, err := verifier.Decode(idToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return identityFromClaims(claimSet)
}

// identityFromClaims 仅接受 Google 已验证的邮箱
func identityFromClaims(claimSet *verifier.ClaimSet) (*Identity, error) {
	if claimSet == nil || strings.TrimSpace(claimSet.Email) == "" || !claimSet.EmailVerified {
		return nil, ErrInvalidToken
	}
	return &Identity{
		Subject:       claimSet.Sub,
		Email:         strings.ToLower(strings.TrimSpace(claimSet.Email)),
		EmailVerified: true,
		Name:          claimSet.Name,
	}, nil
}

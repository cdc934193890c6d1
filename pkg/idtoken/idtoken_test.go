package idtoken

import (
	"errors"
	"testing"

	verifier "github.com/futurenda/google-auth-id-token-verifier"
)

func TestVerify_Disabled(t *testing.T) {
	_, err := NewGoogleVerifier("").Verify("anything")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("期望 ErrDisabled，实际: %v", err)
	}
}

func TestVerify_EmptyToken(t *testing.T) {
	_, err := NewGoogleVerifier("client-id.apps.googleusercontent.com").Verify("  ")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("期望 ErrInvalidToken，实际: %v", err)
	}
}

func TestVerify_MalformedToken(t *testing.T) {
	_, err := NewGoogleVerifier("client-id.apps.googleusercontent.com").Verify("not-a-jwt")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("期望 ErrInvalidToken，实际: %v", err)
	}
}

func TestIdentityFromClaims(t *testing.T) {
	tests := []struct {
		name    string
		claims  *verifier.ClaimSet
		wantErr bool
	}{
		{"邮箱已验证", &verifier.ClaimSet{Email: " Student@College.edu ", EmailVerified: true, Name: "Stu"}, false},
		{"邮箱未验证", &verifier.ClaimSet{Email: "admin@college.edu", EmailVerified: false}, true},
		{"缺少邮箱", &verifier.ClaimSet{EmailVerified: true}, true},
		{"空声明", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := identityFromClaims(tt.claims)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Errorf("期望 ErrInvalidToken，实际: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("不应返回错误: %v", err)
			}
			if identity.Email != "student@college.edu" || !identity.EmailVerified {
				t.Errorf("身份解析错误: %+v", identity)
			}
		})
	}
}

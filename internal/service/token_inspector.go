package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
)

// DefaultExpirySkew keeps tokens that expire within this margin from being sent.
const DefaultExpirySkew = 30 * time.Second

// TokenInspector decodes access token claims locally. Signatures are not verified;
// the remote API remains the authority on validity.
type TokenInspector struct {
	parser      *jwt.Parser
	skew        time.Duration
	rolesClaims []string
	now         func() time.Time
}

// NewTokenInspector constructs an inspector. rolesClaims lists the claim names searched
// for roles, in order; it defaults to "roles".
func NewTokenInspector(skew time.Duration, rolesClaims ...string) *TokenInspector {
	if skew < 0 {
		skew = DefaultExpirySkew
	}
	if len(rolesClaims) == 0 {
		rolesClaims = []string{"roles"}
	}
	return &TokenInspector{
		parser:      jwt.NewParser(),
		skew:        skew,
		rolesClaims: rolesClaims,
		now:         time.Now,
	}
}

// DecodeClaims extracts expiry and roles. A malformed token or one without an exp claim
// yields ErrTokenDecode.
func (i *TokenInspector) DecodeClaims(token string) (*models.TokenClaims, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrTokenDecode, "access token is empty")
	}
	claims := jwt.MapClaims{}
	if _, _, err := i.parser.ParseUnverified(token, claims); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTokenDecode.Code, appErrors.ErrTokenDecode.Status, appErrors.ErrTokenDecode.Message)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTokenDecode.Code, appErrors.ErrTokenDecode.Status, "access token exp claim is invalid")
	}
	if exp == nil {
		return nil, appErrors.Clone(appErrors.ErrTokenDecode, "access token has no exp claim")
	}

	return &models.TokenClaims{
		ExpiresAt: exp.Unix(),
		Roles:     i.roles(claims),
	}, nil
}

// IsExpired applies the configured skew.
func (i *TokenInspector) IsExpired(token string) bool {
	return i.IsExpiredWithSkew(token, i.skew)
}

// IsExpiredWithSkew reports true when the token cannot be decoded or when
// exp < now + skew. A token expiring exactly at now + skew is still usable.
func (i *TokenInspector) IsExpiredWithSkew(token string, skew time.Duration) bool {
	claims, err := i.DecodeClaims(token)
	if err != nil {
		return true
	}
	deadline := i.now().Add(skew).Unix()
	return claims.ExpiresAt < deadline
}

func (i *TokenInspector) roles(claims jwt.MapClaims) []string {
	for _, name := range i.rolesClaims {
		raw, ok := claims[name]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v != "" {
				return []string{v}
			}
		case []interface{}:
			roles := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					roles = append(roles, s)
				} else if item != nil {
					roles = append(roles, fmt.Sprint(item))
				}
			}
			return roles
		}
	}
	return []string{}
}

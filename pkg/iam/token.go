/*
Copyright 2023-2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package iam

import (
	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"

	"github.com/eschercloudai/cumulus/pkg/errors"
)

// tokenIssuer names this process in issued tokens.
const tokenIssuer = "https://cumulus.local"

// Claims are the bearer token claims.  Scope is carried for wire fidelity
// but authorization decisions come from policies.
type Claims struct {
	jwt.Claims

	Scope string `json:"scope,omitempty"`
}

// Token is the issue response, OAuth token endpoint shaped.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// IssueToken mints an HS256 bearer for a subject.
func (s *Service) IssueToken(subject, scope string) (*Token, error) {
	if subject == "" {
		return nil, errors.OAuth2InvalidRequest("subject is required")
	}

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.HS256,
		Key:       []byte(s.options.JWTSecret),
	}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, errors.Internal("failed to create token signer").WithError(err)
	}

	now := s.clock.Now()
	expiry := now.Add(s.options.TokenExpiry)

	claims := Claims{
		Claims: jwt.Claims{
			ID:        uuid.New().String(),
			Issuer:    tokenIssuer,
			Subject:   subject,
			Audience:  jwt.Audience{tokenIssuer},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(expiry),
		},
		Scope: scope,
	}

	serialized, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return nil, errors.Internal("failed to serialize token").WithError(err)
	}

	return &Token{
		AccessToken: serialized,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.options.TokenExpiry.Seconds()),
		Scope:       scope,
	}, nil
}

// VerifyToken validates a bearer and returns its claims.  Revoked tokens
// fail verification regardless of validity window.
func (s *Service) VerifyToken(raw string) (*Claims, error) {
	token, err := jwt.ParseSigned(raw)
	if err != nil {
		return nil, errors.Unauthenticated("malformed bearer token").WithError(err)
	}

	var claims Claims

	if err := token.Claims([]byte(s.options.JWTSecret), &claims); err != nil {
		return nil, errors.Unauthenticated("bearer token signature is invalid").WithError(err)
	}

	err = claims.Validate(jwt.Expected{
		Issuer: tokenIssuer,
		Time:   s.clock.Now(),
	})
	if err != nil {
		return nil, errors.Unauthenticated("bearer token is expired or not yet valid").WithError(err)
	}

	s.revokedMu.Lock()
	revoked := s.revoked[claims.ID]
	s.revokedMu.Unlock()

	if revoked {
		return nil, errors.Unauthenticated("bearer token has been revoked")
	}

	return &claims, nil
}

// RevokeToken adds a bearer to the revocation set.  Unknown or malformed
// tokens revoke successfully per RFC 7009.
func (s *Service) RevokeToken(raw string) {
	token, err := jwt.ParseSigned(raw)
	if err != nil {
		return
	}

	var claims Claims

	if err := token.Claims([]byte(s.options.JWTSecret), &claims); err != nil {
		return
	}

	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()

	s.revoked[claims.ID] = true
}

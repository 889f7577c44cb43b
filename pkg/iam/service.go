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

// Package iam implements identities and authorization: service accounts
// with synthetic keys, resource policies, permission evaluation and the
// fake OAuth token surface.
package iam

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	goerrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// Options configures identity handling.
type Options struct {
	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string

	// APIKey is the static key header credential.
	APIKey string

	// TokenExpiry bounds issued bearer tokens.
	TokenExpiry time.Duration
}

// AddFlags registers identity options.
func (o *Options) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&o.JWTSecret, "jwt-secret", "cumulus-jwt-secret", "HMAC secret for bearer token issue and verification.")
	f.StringVar(&o.APIKey, "api-key", "", "Static API key accepted by the auth middleware, empty disables key auth.")
	f.DurationVar(&o.TokenExpiry, "token-expiry", time.Hour, "Lifetime of issued bearer tokens.")
}

// Service is the identity and authorization service.
type Service struct {
	database *sqlx.DB
	repos    *repo.Repositories
	clock    clock.Clock
	options  *Options

	// revoked is the in-memory token revocation set, keyed by token id.
	revokedMu sync.Mutex
	revoked   map[string]bool
}

// New creates the identity service.
func New(database *sqlx.DB, clk clock.Clock, options *Options) *Service {
	return &Service{
		database: database,
		repos:    repo.New(database),
		clock:    clk,
		options:  options,
		revoked:  map[string]bool{},
	}
}

// CreateServiceAccount creates a robot identity within a project.
func (s *Service) CreateServiceAccount(ctx context.Context, projectID, accountID, displayName string) (*models.ServiceAccount, error) {
	if accountID == "" {
		return nil, errors.InvalidArgument("account id is required")
	}

	account := &models.ServiceAccount{
		Email:       fmt.Sprintf("%s@%s.iam.cumulus.local", accountID, projectID),
		ProjectID:   projectID,
		DisplayName: displayName,
		UniqueID:    uuid.New().String(),
		CreatedAt:   s.clock.Now(),
	}

	if err := s.repos.ServiceAccounts.Create(ctx, account); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("service account already exists").WithValues("email", account.Email)
		}

		return nil, errors.Internal("failed to create service account").WithError(err)
	}

	return account, nil
}

// GetServiceAccount resolves an account by email.
func (s *Service) GetServiceAccount(ctx context.Context, email string) (*models.ServiceAccount, error) {
	account, err := s.repos.ServiceAccounts.Get(ctx, email)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("service account not found").WithValues("email", email)
		}

		return nil, errors.Internal("failed to read service account").WithError(err)
	}

	return account, nil
}

// ListServiceAccounts returns a project's accounts.
func (s *Service) ListServiceAccounts(ctx context.Context, projectID string) ([]models.ServiceAccount, error) {
	accounts, err := s.repos.ServiceAccounts.List(ctx, projectID)
	if err != nil {
		return nil, errors.Internal("failed to list service accounts").WithError(err)
	}

	return accounts, nil
}

// DeleteServiceAccount removes an account and its keys.
func (s *Service) DeleteServiceAccount(ctx context.Context, email string) error {
	if _, err := s.GetServiceAccount(ctx, email); err != nil {
		return err
	}

	if err := s.repos.ServiceAccounts.Delete(ctx, email); err != nil {
		return errors.Internal("failed to delete service account").WithError(err)
	}

	return nil
}

// CreateKey mints synthetic key material for an account.  Nothing is ever
// signed with it, the bytes only need to look plausible.
func (s *Service) CreateKey(ctx context.Context, email string) (*models.ServiceAccountKey, error) {
	if _, err := s.GetServiceAccount(ctx, email); err != nil {
		return nil, err
	}

	material := make([]byte, 64)

	if _, err := rand.Read(material); err != nil {
		return nil, errors.Internal("failed to generate key material").WithError(err)
	}

	now := s.clock.Now()

	key := &models.ServiceAccountKey{
		ID:                  uuid.New().String(),
		ServiceAccountEmail: email,
		PrivateKeyData:      base64.StdEncoding.EncodeToString(material),
		KeyAlgorithm:        "KEY_ALG_RSA_2048",
		ValidAfter:          now,
		ValidBefore:         now.AddDate(10, 0, 0),
	}

	if err := s.repos.ServiceAccounts.CreateKey(ctx, key); err != nil {
		return nil, errors.Internal("failed to create key").WithError(err)
	}

	return key, nil
}

// ListKeys returns an account's keys.
func (s *Service) ListKeys(ctx context.Context, email string) ([]models.ServiceAccountKey, error) {
	if _, err := s.GetServiceAccount(ctx, email); err != nil {
		return nil, err
	}

	keys, err := s.repos.ServiceAccounts.ListKeys(ctx, email)
	if err != nil {
		return nil, errors.Internal("failed to list keys").WithError(err)
	}

	return keys, nil
}

// DeleteKey removes a key by id.
func (s *Service) DeleteKey(ctx context.Context, keyID string) error {
	if err := s.repos.ServiceAccounts.DeleteKey(ctx, keyID); err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return errors.NotFound("key not found").WithValues("key", keyID)
		}

		return errors.Internal("failed to delete key").WithError(err)
	}

	return nil
}

// GetPolicy returns a resource's policy, an empty one when never set.
func (s *Service) GetPolicy(ctx context.Context, resourceType, resourceID string) (*models.IamPolicy, error) {
	policy, err := s.repos.Policies.Get(ctx, resourceType, resourceID)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return &models.IamPolicy{
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Version:      1,
				Etag:         freshEtag(),
				Bindings:     models.Bindings{},
			}, nil
		}

		return nil, errors.Internal("failed to read policy").WithError(err)
	}

	return policy, nil
}

// SetPolicy replaces a resource's bindings.  A caller-supplied etag must
// match the stored one, the write refreshes it either way.
func (s *Service) SetPolicy(ctx context.Context, resourceType, resourceID, etag string, bindings models.Bindings) (*models.IamPolicy, error) {
	current, err := s.GetPolicy(ctx, resourceType, resourceID)
	if err != nil {
		return nil, err
	}

	if etag != "" && etag != current.Etag {
		return nil, errors.PreconditionFailed("policy etag mismatch").
			WithValues("expected", current.Etag, "actual", etag)
	}

	policy := &models.IamPolicy{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Version:      current.Version,
		Etag:         freshEtag(),
		Bindings:     bindings,
	}

	if err := s.repos.Policies.Set(ctx, policy); err != nil {
		return nil, errors.Internal("failed to write policy").WithError(err)
	}

	return policy, nil
}

// freshEtag mints an opaque etag.
func freshEtag() string {
	return base64.RawURLEncoding.EncodeToString([]byte(uuid.New().String()))[:16]
}

// rolePermits maps coarse roles onto permission verbs.  Owner and editor
// grant everything, viewer read verbs, family admin roles everything within
// their family.
func rolePermits(role, permission string) bool {
	switch role {
	case "roles/owner", "roles/editor":
		return true
	case "roles/viewer":
		return strings.HasSuffix(permission, ".get") || strings.HasSuffix(permission, ".list")
	}

	// roles/storage.admin covers storage.*, same for compute and vpc.
	if family, ok := strings.CutSuffix(role, ".admin"); ok {
		return strings.HasPrefix(permission, strings.TrimPrefix(family, "roles/")+".")
	}

	// Exact permission grants, roles/storage.objects.get style.
	return strings.TrimPrefix(role, "roles/") == permission
}

// memberMatches evaluates a binding member against a caller identity.
func memberMatches(member, identity string) bool {
	switch member {
	case "allUsers":
		return true
	case "allAuthenticatedUsers":
		return identity != "" && identity != "anonymous"
	}

	if _, email, found := strings.Cut(member, ":"); found {
		return email == identity
	}

	return member == identity
}

// CheckPermission evaluates whether an identity holds a permission on a
// resource.  Absence of a policy denies, except through the public
// principals.
func (s *Service) CheckPermission(ctx context.Context, identity, resourceType, resourceID, permission string) (bool, error) {
	log.Stage(ctx, log.StageService)

	policy, err := s.repos.Policies.Get(ctx, resourceType, resourceID)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return false, nil
		}

		return false, errors.Internal("failed to read policy").WithError(err)
	}

	for _, binding := range policy.Bindings {
		if !rolePermits(binding.Role, permission) {
			continue
		}

		for _, member := range binding.Members {
			if memberMatches(member, identity) {
				return true, nil
			}
		}
	}

	return false, nil
}

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

package vpc

import (
	"context"
	goerrors "errors"
	"net/netip"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
)

// allowedProtocols is the closed set firewall rules may name.
var allowedProtocols = map[string]bool{
	"tcp":  true,
	"udp":  true,
	"icmp": true,
	"esp":  true,
	"ah":   true,
	"sctp": true,
	"all":  true,
}

// validatePort accepts a single port or an ordered S-E range within
// [0, 65535].
func validatePort(port string) error {
	parse := func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 65535 {
			return 0, errors.InvalidArgument("port out of range").WithValues("port", port)
		}

		return n, nil
	}

	if low, high, found := strings.Cut(port, "-"); found {
		start, err := parse(low)
		if err != nil {
			return err
		}

		end, err := parse(high)
		if err != nil {
			return err
		}

		if start > end {
			return errors.InvalidArgument("port range is inverted").WithValues("port", port)
		}

		return nil
	}

	_, err := parse(port)

	return err
}

// validateRanges checks CIDR syntax on every member.
func validateRanges(ranges []string) error {
	for _, r := range ranges {
		if _, err := netip.ParsePrefix(r); err != nil {
			return errors.InvalidArgument("malformed CIDR range").WithValues("range", r).WithError(err)
		}
	}

	return nil
}

// FirewallParams describes a firewall rule to create.
type FirewallParams struct {
	Name            string
	Network         string
	Priority        int
	Direction       string
	Action          string
	ProtocolEntries models.ProtocolEntries
	SourceRanges    []string
	DestRanges      []string
	SourceTags      []string
	TargetTags      []string
}

// CreateFirewall records a firewall rule.  Pure metadata, packets are never
// inspected.
func (s *Service) CreateFirewall(ctx context.Context, projectID string, params *FirewallParams) (*models.FirewallRule, error) {
	if err := ValidateResourceName(params.Name); err != nil {
		return nil, err
	}

	if params.Priority < 0 || params.Priority > 65535 {
		return nil, errors.InvalidArgument("priority must be within [0, 65535]").WithValues("priority", params.Priority)
	}

	direction := params.Direction
	if direction == "" {
		direction = "INGRESS"
	}

	if direction != "INGRESS" && direction != "EGRESS" {
		return nil, errors.InvalidArgument("direction must be INGRESS or EGRESS").WithValues("direction", direction)
	}

	action := params.Action
	if action == "" {
		action = "ALLOW"
	}

	if action != "ALLOW" && action != "DENY" {
		return nil, errors.InvalidArgument("action must be ALLOW or DENY").WithValues("action", action)
	}

	for _, entry := range params.ProtocolEntries {
		if !allowedProtocols[strings.ToLower(entry.Protocol)] {
			return nil, errors.InvalidArgument("unsupported protocol").WithValues("protocol", entry.Protocol)
		}

		for _, port := range entry.Ports {
			if err := validatePort(port); err != nil {
				return nil, err
			}
		}
	}

	if err := validateRanges(params.SourceRanges); err != nil {
		return nil, err
	}

	if err := validateRanges(params.DestRanges); err != nil {
		return nil, err
	}

	network, err := s.GetNetwork(ctx, projectID, params.Network)
	if err != nil {
		return nil, err
	}

	rule := &models.FirewallRule{
		ID:              uuid.New().String(),
		NetworkID:       network.ID,
		Name:            params.Name,
		Priority:        params.Priority,
		Direction:       direction,
		Action:          action,
		ProtocolEntries: params.ProtocolEntries,
		SourceRanges:    params.SourceRanges,
		DestRanges:      params.DestRanges,
		SourceTags:      params.SourceTags,
		TargetTags:      params.TargetTags,
		CreatedAt:       s.clock.Now(),
	}

	if err := s.repos.Firewalls.Create(ctx, rule); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("firewall rule name already in use").WithValues("firewall", params.Name)
		}

		return nil, errors.Internal("failed to create firewall rule").WithError(err)
	}

	return rule, nil
}

// GetFirewall resolves a rule by name within a project.
func (s *Service) GetFirewall(ctx context.Context, projectID, name string) (*models.FirewallRule, error) {
	rule, err := s.repos.Firewalls.GetByProjectAndName(ctx, projectID, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("firewall rule not found").WithValues("firewall", name)
		}

		return nil, errors.Internal("failed to read firewall rule").WithError(err)
	}

	return rule, nil
}

// ListFirewalls returns a project's rules.
func (s *Service) ListFirewalls(ctx context.Context, projectID string) ([]models.FirewallRule, error) {
	rules, err := s.repos.Firewalls.ListByProject(ctx, projectID)
	if err != nil {
		return nil, errors.Internal("failed to list firewall rules").WithError(err)
	}

	return rules, nil
}

// DeleteFirewall removes a rule.
func (s *Service) DeleteFirewall(ctx context.Context, projectID, name string) error {
	rule, err := s.GetFirewall(ctx, projectID, name)
	if err != nil {
		return err
	}

	if err := s.repos.Firewalls.Delete(ctx, rule.ID); err != nil {
		return errors.Internal("failed to delete firewall rule").WithError(err)
	}

	return nil
}

// allowedNextHopTypes mirrors the provider's route next hop kinds.
var allowedNextHopTypes = map[string]bool{
	"gateway":      true,
	"instance":     true,
	"ip":           true,
	"vpnTunnel":    true,
	"interconnect": true,
}

// RouteParams describes a route to create.
type RouteParams struct {
	Name        string
	Network     string
	DestRange   string
	Priority    int
	NextHopType string
	NextHop     string
	Tags        []string
}

// CreateRoute records a route, metadata only.
func (s *Service) CreateRoute(ctx context.Context, projectID string, params *RouteParams) (*models.Route, error) {
	if err := ValidateResourceName(params.Name); err != nil {
		return nil, err
	}

	if _, err := netip.ParsePrefix(params.DestRange); err != nil {
		return nil, errors.InvalidArgument("malformed destination range").WithValues("destRange", params.DestRange).WithError(err)
	}

	if !allowedNextHopTypes[params.NextHopType] {
		return nil, errors.InvalidArgument("unsupported next hop type").WithValues("nextHopType", params.NextHopType)
	}

	network, err := s.GetNetwork(ctx, projectID, params.Network)
	if err != nil {
		return nil, err
	}

	route := &models.Route{
		ID:          uuid.New().String(),
		NetworkID:   network.ID,
		Name:        params.Name,
		DestRange:   params.DestRange,
		Priority:    params.Priority,
		NextHopType: params.NextHopType,
		NextHop:     params.NextHop,
		Tags:        params.Tags,
		CreatedAt:   s.clock.Now(),
	}

	if err := s.repos.Routes.Create(ctx, route); err != nil {
		if goerrors.Is(err, repo.ErrConflict) {
			return nil, errors.AlreadyExists("route name already in use").WithValues("route", params.Name)
		}

		return nil, errors.Internal("failed to create route").WithError(err)
	}

	return route, nil
}

// ListRoutes returns a project's routes.
func (s *Service) ListRoutes(ctx context.Context, projectID string) ([]models.Route, error) {
	routes, err := s.repos.Routes.ListByProject(ctx, projectID)
	if err != nil {
		return nil, errors.Internal("failed to list routes").WithError(err)
	}

	return routes, nil
}

// DeleteRoute removes a route by name.
func (s *Service) DeleteRoute(ctx context.Context, projectID, name string) error {
	route, err := s.repos.Routes.GetByProjectAndName(ctx, projectID, name)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return errors.NotFound("route not found").WithValues("route", name)
		}

		return errors.Internal("failed to read route").WithError(err)
	}

	if err := s.repos.Routes.Delete(ctx, route.ID); err != nil {
		return errors.Internal("failed to delete route").WithError(err)
	}

	return nil
}

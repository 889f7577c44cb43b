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

package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/eschercloudai/cumulus/pkg/models"
)

// FirewallRepo stores firewall rules.  They are metadata only.
type FirewallRepo struct {
	q Queryer
}

func (r *FirewallRepo) Create(ctx context.Context, rule *models.FirewallRule) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO firewall_rules (id, network_id, name, priority, direction, action,
			protocol_entries, source_ranges, dest_ranges, source_tags, target_tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.NetworkID, rule.Name, rule.Priority, rule.Direction, rule.Action,
		rule.ProtocolEntries, rule.SourceRanges, rule.DestRanges, rule.SourceTags,
		rule.TargetTags, rule.CreatedAt)

	return translate(err)
}

func (r *FirewallRepo) GetByName(ctx context.Context, networkID, name string) (*models.FirewallRule, error) {
	var rule models.FirewallRule

	if err := sqlx.GetContext(ctx, r.q, &rule,
		`SELECT * FROM firewall_rules WHERE network_id = ? AND name = ?`, networkID, name); err != nil {
		return nil, translate(err)
	}

	return &rule, nil
}

// GetByProjectAndName resolves a firewall rule in the project's global scope.
func (r *FirewallRepo) GetByProjectAndName(ctx context.Context, projectID, name string) (*models.FirewallRule, error) {
	var rule models.FirewallRule

	if err := sqlx.GetContext(ctx, r.q, &rule,
		`SELECT f.* FROM firewall_rules f JOIN networks n ON f.network_id = n.id
		 WHERE n.project_id = ? AND f.name = ?`, projectID, name); err != nil {
		return nil, translate(err)
	}

	return &rule, nil
}

func (r *FirewallRepo) ListByProject(ctx context.Context, projectID string) ([]models.FirewallRule, error) {
	var rules []models.FirewallRule

	if err := sqlx.SelectContext(ctx, r.q, &rules,
		`SELECT f.* FROM firewall_rules f JOIN networks n ON f.network_id = n.id
		 WHERE n.project_id = ? ORDER BY f.name`, projectID); err != nil {
		return nil, translate(err)
	}

	return rules, nil
}

func (r *FirewallRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM firewall_rules WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// RouteRepo stores routes.  Metadata only.
type RouteRepo struct {
	q Queryer
}

func (r *RouteRepo) Create(ctx context.Context, route *models.Route) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO routes (id, network_id, name, dest_range, priority, next_hop_type, next_hop, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		route.ID, route.NetworkID, route.Name, route.DestRange, route.Priority,
		route.NextHopType, route.NextHop, route.Tags, route.CreatedAt)

	return translate(err)
}

func (r *RouteRepo) GetByProjectAndName(ctx context.Context, projectID, name string) (*models.Route, error) {
	var route models.Route

	if err := sqlx.GetContext(ctx, r.q, &route,
		`SELECT r.* FROM routes r JOIN networks n ON r.network_id = n.id
		 WHERE n.project_id = ? AND r.name = ?`, projectID, name); err != nil {
		return nil, translate(err)
	}

	return &route, nil
}

func (r *RouteRepo) ListByProject(ctx context.Context, projectID string) ([]models.Route, error) {
	var routes []models.Route

	if err := sqlx.SelectContext(ctx, r.q, &routes,
		`SELECT r.* FROM routes r JOIN networks n ON r.network_id = n.id
		 WHERE n.project_id = ? ORDER BY r.name`, projectID); err != nil {
		return nil, translate(err)
	}

	return routes, nil
}

func (r *RouteRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM routes WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// RouterRepo stores routers.  Metadata only.
type RouterRepo struct {
	q Queryer
}

func (r *RouterRepo) Create(ctx context.Context, router *models.Router) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO routers (id, network_id, name, region, bgp_asn, keepalive_sec, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		router.ID, router.NetworkID, router.Name, router.Region, router.BGPASN,
		router.KeepaliveSec, router.CreatedAt)

	return translate(err)
}

func (r *RouterRepo) ListByRegion(ctx context.Context, projectID, region string) ([]models.Router, error) {
	var routers []models.Router

	if err := sqlx.SelectContext(ctx, r.q, &routers,
		`SELECT r.* FROM routers r JOIN networks n ON r.network_id = n.id
		 WHERE n.project_id = ? AND r.region = ? ORDER BY r.name`, projectID, region); err != nil {
		return nil, translate(err)
	}

	return routers, nil
}

func (r *RouterRepo) GetByName(ctx context.Context, projectID, region, name string) (*models.Router, error) {
	var router models.Router

	if err := sqlx.GetContext(ctx, r.q, &router,
		`SELECT r.* FROM routers r JOIN networks n ON r.network_id = n.id
		 WHERE n.project_id = ? AND r.region = ? AND r.name = ?`, projectID, region, name); err != nil {
		return nil, translate(err)
	}

	return &router, nil
}

func (r *RouterRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM routers WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// VPNTunnelRepo stores VPN tunnels.  Metadata only.
type VPNTunnelRepo struct {
	q Queryer
}

func (r *VPNTunnelRepo) Create(ctx context.Context, tunnel *models.VPNTunnel) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO vpn_tunnels (id, network_id, name, region, peer_ip, gateway_ip, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tunnel.ID, tunnel.NetworkID, tunnel.Name, tunnel.Region, tunnel.PeerIP,
		tunnel.GatewayIP, tunnel.Status, tunnel.CreatedAt)

	return translate(err)
}

func (r *VPNTunnelRepo) ListByRegion(ctx context.Context, projectID, region string) ([]models.VPNTunnel, error) {
	var tunnels []models.VPNTunnel

	if err := sqlx.SelectContext(ctx, r.q, &tunnels,
		`SELECT t.* FROM vpn_tunnels t JOIN networks n ON t.network_id = n.id
		 WHERE n.project_id = ? AND t.region = ? ORDER BY t.name`, projectID, region); err != nil {
		return nil, translate(err)
	}

	return tunnels, nil
}

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

package vpc_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/container"
	"github.com/eschercloudai/cumulus/pkg/db"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/util/clock"
	"github.com/eschercloudai/cumulus/pkg/vpc"
)

const testProject = "default"

func newTestService(t *testing.T) (*vpc.Service, *container.FakeDriver, *sqlx.DB) {
	t.Helper()

	ctx := context.Background()

	database, err := db.Open(ctx, &db.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)

	t.Cleanup(func() {
		database.Close()
	})

	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	_, err = database.ExecContext(ctx, `INSERT INTO projects (id, display_name, project_number, created_at) VALUES (?, ?, ?, ?)`,
		testProject, "Default project", 1, clk.Now())
	require.NoError(t, err)

	driver := container.NewFakeDriver()

	return vpc.New(database, driver, clk), driver, database
}

func createNetwork(t *testing.T, service *vpc.Service, params *vpc.NetworkParams) *models.Network {
	t.Helper()

	network, err := service.CreateNetwork(context.Background(), testProject, params)
	require.NoError(t, err)

	return network
}

// seedNIC attaches a fake instance interface so address accounting sees the
// IP as taken.
func seedNIC(t *testing.T, database *sqlx.DB, subnet *models.Subnetwork, ip string) string {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	instanceID := uuid.New().String()

	_, err := database.ExecContext(ctx,
		`INSERT INTO instances (id, project_id, name, zone, machine_type, status, network_id, subnet_id, internal_ip, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		instanceID, testProject, "vm-"+instanceID[:8], "us-central1-a", "e2-small", "RUNNING",
		subnet.NetworkID, subnet.ID, ip, now, now)
	require.NoError(t, err)

	nicID := uuid.New().String()

	_, err = database.ExecContext(ctx,
		`INSERT INTO network_interfaces (id, instance_id, network_id, subnet_id, name, internal_ip, nic_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nicID, instanceID, subnet.NetworkID, subnet.ID, "nic0", ip, 0, now)
	require.NoError(t, err)

	return nicID
}

func TestCreateNetworkAutoSubnets(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "auto-net", AutoCreateSubnets: true})

	subnets, err := service.ListSubnets(ctx, testProject, "auto-net")
	require.NoError(t, err)
	assert.Len(t, subnets, 4)

	subnet, err := service.GetSubnet(ctx, testProject, "auto-net", "us-central1")
	require.NoError(t, err)
	assert.Equal(t, "10.128.0.0/20", subnet.CIDR)
	assert.Equal(t, "10.128.0.1", subnet.GatewayIP)
}

func TestCreateNetworkDefaults(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)

	network := createNetwork(t, service, &vpc.NetworkParams{Name: "custom-net"})

	assert.Equal(t, "REGIONAL", network.RoutingMode)
	assert.Equal(t, 1460, network.MTU)

	subnets, err := service.ListSubnets(context.Background(), testProject, "custom-net")
	require.NoError(t, err)
	assert.Empty(t, subnets)
}

func TestCreateNetworkConflictAndValidation(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "taken"})

	_, err := service.CreateNetwork(ctx, testProject, &vpc.NetworkParams{Name: "taken"})
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))

	for _, name := range []string{"", "9lead", "Upper", "trailing-"} {
		_, err := service.CreateNetwork(ctx, testProject, &vpc.NetworkParams{Name: name})
		assert.Error(t, err, name)
	}
}

func TestCreateSubnetOverlap(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net"})

	_, err := service.CreateSubnet(ctx, testProject, "net", &vpc.SubnetParams{
		Name:   "wide",
		Region: "us-central1",
		CIDR:   "10.0.0.0/16",
	})
	require.NoError(t, err)

	// Contained range.
	_, err = service.CreateSubnet(ctx, testProject, "net", &vpc.SubnetParams{
		Name:   "inner",
		Region: "us-east1",
		CIDR:   "10.0.1.0/24",
	})
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	// Disjoint range is fine.
	_, err = service.CreateSubnet(ctx, testProject, "net", &vpc.SubnetParams{
		Name:   "other",
		Region: "us-east1",
		CIDR:   "10.1.0.0/24",
	})
	require.NoError(t, err)

	_, err = service.CreateSubnet(ctx, testProject, "net", &vpc.SubnetParams{
		Name:   "wide",
		Region: "europe-west1",
		CIDR:   "10.2.0.0/24",
	})
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))
}

func TestSubnetCIDRValidation(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net"})

	for _, cidr := range []string{"nonsense", "10.0.0.1/24", "10.0.0.0/30", "2001:db8::/64", "10.0.0.0/7"} {
		_, err := service.CreateSubnet(ctx, testProject, "net", &vpc.SubnetParams{
			Name:   "bad",
			Region: "us-central1",
			CIDR:   cidr,
		})
		require.Error(t, err, cidr)
		assert.Equal(t, 400, errors.StatusOf(err), cidr)
	}
}

func TestAllocateInternalIPSequence(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net"})

	subnet, err := service.CreateSubnet(ctx, testProject, "net", &vpc.SubnetParams{
		Name:   "workers",
		Region: "us-central1",
		CIDR:   "10.0.0.0/24",
	})
	require.NoError(t, err)

	// First four indexes are reserved.
	ip, err := service.AllocateInternalIP(ctx, subnet)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.4", ip)

	ip, err = service.AllocateInternalIP(ctx, subnet)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", ip)
}

func TestAllocateInternalIPExhaustionAndReuse(t *testing.T) {
	t.Parallel()

	service, _, database := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net"})

	// A /29 has three usable addresses, .4 through .6.
	subnet, err := service.CreateSubnet(ctx, testProject, "net", &vpc.SubnetParams{
		Name:   "tiny",
		Region: "us-central1",
		CIDR:   "10.0.0.0/29",
	})
	require.NoError(t, err)

	nics := map[string]string{}

	for _, want := range []string{"10.0.0.4", "10.0.0.5", "10.0.0.6"} {
		ip, err := service.AllocateInternalIP(ctx, subnet)
		require.NoError(t, err)
		assert.Equal(t, want, ip)

		nics[ip] = seedNIC(t, database, subnet, ip)
	}

	_, err = service.AllocateInternalIP(ctx, subnet)
	require.Error(t, err)
	assert.Equal(t, 429, errors.StatusOf(err))

	// Freeing an address makes it allocatable again via the wrap.
	_, err = database.ExecContext(ctx, `DELETE FROM network_interfaces WHERE id = ?`, nics["10.0.0.5"])
	require.NoError(t, err)

	ip, err := service.AllocateInternalIP(ctx, subnet)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", ip)
}

func TestPeeringLifecycle(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net-a"})
	createNetwork(t, service, &vpc.NetworkParams{Name: "net-b"})

	_, err := service.CreateSubnet(ctx, testProject, "net-a", &vpc.SubnetParams{Name: "sub-a", Region: "us-central1", CIDR: "10.0.0.0/24"})
	require.NoError(t, err)

	_, err = service.CreateSubnet(ctx, testProject, "net-b", &vpc.SubnetParams{Name: "sub-b", Region: "us-central1", CIDR: "10.1.0.0/24"})
	require.NoError(t, err)

	peering, err := service.AddPeering(ctx, testProject, "net-a", &vpc.PeeringParams{Name: "a-to-b", PeerNetwork: "net-b"})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", peering.State)

	// Same pair again is a conflict.
	_, err = service.AddPeering(ctx, testProject, "net-a", &vpc.PeeringParams{Name: "a-to-b-again", PeerNetwork: "net-b"})
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))

	// A peered network cannot be deleted.
	err = service.DeleteNetwork(ctx, testProject, "net-a")
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	require.NoError(t, service.RemovePeering(ctx, testProject, "net-a", "a-to-b"))
	require.NoError(t, service.DeleteNetwork(ctx, testProject, "net-a"))
}

func TestPeeringRefusesSelfAndOverlap(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net-a"})
	createNetwork(t, service, &vpc.NetworkParams{Name: "net-b"})

	_, err := service.AddPeering(ctx, testProject, "net-a", &vpc.PeeringParams{Name: "self", PeerNetwork: "net-a"})
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	_, err = service.CreateSubnet(ctx, testProject, "net-a", &vpc.SubnetParams{Name: "sub-a", Region: "us-central1", CIDR: "10.0.0.0/16"})
	require.NoError(t, err)

	_, err = service.CreateSubnet(ctx, testProject, "net-b", &vpc.SubnetParams{Name: "sub-b", Region: "us-central1", CIDR: "10.0.128.0/24"})
	require.NoError(t, err)

	_, err = service.AddPeering(ctx, testProject, "net-a", &vpc.PeeringParams{Name: "a-to-b", PeerNetwork: "net-b"})
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))
}

func TestFirewallValidation(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net"})

	rule, err := service.CreateFirewall(ctx, testProject, &vpc.FirewallParams{
		Name:            "allow-ssh",
		Network:         "net",
		Priority:        1000,
		ProtocolEntries: models.ProtocolEntries{{Protocol: "tcp", Ports: []string{"22", "8000-9000"}}},
		SourceRanges:    []string{"0.0.0.0/0"},
	})
	require.NoError(t, err)
	assert.Equal(t, "INGRESS", rule.Direction)
	assert.Equal(t, "ALLOW", rule.Action)

	cases := []*vpc.FirewallParams{
		{Name: "bad-proto", Network: "net", ProtocolEntries: models.ProtocolEntries{{Protocol: "gre"}}},
		{Name: "bad-port", Network: "net", ProtocolEntries: models.ProtocolEntries{{Protocol: "tcp", Ports: []string{"70000"}}}},
		{Name: "inverted-range", Network: "net", ProtocolEntries: models.ProtocolEntries{{Protocol: "tcp", Ports: []string{"500-100"}}}},
		{Name: "bad-dir", Network: "net", Direction: "SIDEWAYS"},
		{Name: "bad-action", Network: "net", Action: "LOG"},
		{Name: "bad-range", Network: "net", SourceRanges: []string{"not-a-cidr"}},
		{Name: "bad-priority", Network: "net", Priority: 100000},
	}

	for _, params := range cases {
		_, err := service.CreateFirewall(ctx, testProject, params)
		require.Error(t, err, params.Name)
		assert.Equal(t, 400, errors.StatusOf(err), params.Name)
	}
}

func TestRouteValidation(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net"})

	_, err := service.CreateRoute(ctx, testProject, &vpc.RouteParams{
		Name:        "default-out",
		Network:     "net",
		DestRange:   "0.0.0.0/0",
		NextHopType: "gateway",
		NextHop:     "default-internet-gateway",
	})
	require.NoError(t, err)

	_, err = service.CreateRoute(ctx, testProject, &vpc.RouteParams{
		Name:        "bad-hop",
		Network:     "net",
		DestRange:   "10.0.0.0/8",
		NextHopType: "teleport",
	})
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	routes, err := service.ListRoutes(ctx, testProject)
	require.NoError(t, err)
	assert.Len(t, routes, 1)

	require.NoError(t, service.DeleteRoute(ctx, testProject, "default-out"))

	err = service.DeleteRoute(ctx, testProject, "default-out")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRouterASNRange(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net"})

	router, err := service.CreateRouter(ctx, testProject, &vpc.RouterParams{
		Name:    "edge",
		Network: "net",
		Region:  "us-central1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(64512), router.BGPASN)
	assert.Equal(t, 20, router.KeepaliveSec)

	// The full 32 bit ASN space is legal, public ASNs included.
	router, err = service.CreateRouter(ctx, testProject, &vpc.RouterParams{
		Name:    "public-asn",
		Network: "net",
		Region:  "us-central1",
		BGPASN:  15169,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15169), router.BGPASN)

	router, err = service.CreateRouter(ctx, testProject, &vpc.RouterParams{
		Name:         "bounds",
		Network:      "net",
		Region:       "us-central1",
		BGPASN:       4294967295,
		KeepaliveSec: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4294967295), router.BGPASN)
	assert.Equal(t, 60, router.KeepaliveSec)

	cases := []*vpc.RouterParams{
		{Name: "asn-high", Network: "net", Region: "us-central1", BGPASN: 4294967296},
		{Name: "asn-low", Network: "net", Region: "us-central1", BGPASN: -1},
		{Name: "keepalive-high", Network: "net", Region: "us-central1", KeepaliveSec: 120},
		{Name: "keepalive-low", Network: "net", Region: "us-central1", KeepaliveSec: -5},
	}

	for _, params := range cases {
		_, err := service.CreateRouter(ctx, testProject, params)
		require.Error(t, err, params.Name)
		assert.Equal(t, 400, errors.StatusOf(err), params.Name)
	}
}

func TestVPNTunnel(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	createNetwork(t, service, &vpc.NetworkParams{Name: "net"})

	tunnel, err := service.CreateVPNTunnel(ctx, testProject, &vpc.VPNTunnelParams{
		Name:    "to-onprem",
		Network: "net",
		Region:  "us-central1",
		PeerIP:  "203.0.113.9",
	})
	require.NoError(t, err)
	assert.Equal(t, "ESTABLISHED", tunnel.Status)
	assert.Contains(t, tunnel.GatewayIP, "192.0.2.")

	_, err = service.CreateVPNTunnel(ctx, testProject, &vpc.VPNTunnelParams{
		Name:    "bad-peer",
		Network: "net",
		Region:  "us-central1",
		PeerIP:  "not-an-ip",
	})
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))
}

func TestAddressLifecycle(t *testing.T) {
	t.Parallel()

	service, _, _ := newTestService(t)
	ctx := context.Background()

	address, err := service.ReserveAddress(ctx, testProject, &vpc.AddressParams{
		Name:   "static-one",
		Region: "us-central1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AddressReserved, address.Status)
	assert.Contains(t, address.IP, "34.")

	require.NoError(t, service.BindAddress(ctx, address, "instance-id"))

	// A bound address can be neither rebound nor deleted.
	err = service.BindAddress(ctx, address, "other-instance")
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	err = service.DeleteAddress(ctx, testProject, "us-central1", "static-one")
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	require.NoError(t, service.ReleaseAddressByIP(ctx, testProject, address.IP))
	require.NoError(t, service.DeleteAddress(ctx, testProject, "us-central1", "static-one"))
}

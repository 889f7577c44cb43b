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
	"encoding/binary"
	"net/netip"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
)

// reservedHostIndexes is how many addresses at the bottom of a subnet are
// never allocated: network, gateway and two provider reserved.
const reservedHostIndexes = 4

// ipAtIndex returns base+index within a v4 prefix.
func ipAtIndex(prefix netip.Prefix, index int64) netip.Addr {
	base := prefix.Masked().Addr().As4()

	value := binary.BigEndian.Uint32(base[:]) + uint32(index)

	var out [4]byte

	binary.BigEndian.PutUint32(out[:], value)

	return netip.AddrFrom4(out)
}

// hostCount is the number of addresses a v4 prefix spans.
func hostCount(prefix netip.Prefix) int64 {
	return int64(1) << (32 - prefix.Bits())
}

// AllocateInternalIP hands out the first available address in a subnet.
// Allocation walks sequentially from the subnet's cursor, wraps to pick up
// freed addresses, and skips the reserved bottom indexes and the broadcast
// address.  Calls for the same subnet serialise on a per-subnet lock.
func (s *Service) AllocateInternalIP(ctx context.Context, subnet *models.Subnetwork) (string, error) {
	s.subnetLocks.Lock(subnet.ID)
	defer s.subnetLocks.Unlock(subnet.ID)

	prefix, err := netip.ParsePrefix(subnet.CIDR)
	if err != nil {
		return "", errors.Internal("stored subnet CIDR is malformed").WithError(err)
	}

	inUse, err := s.repos.NICs.ListIPsBySubnet(ctx, subnet.ID)
	if err != nil {
		return "", errors.Internal("failed to list allocated addresses").WithError(err)
	}

	used := make(map[string]bool, len(inUse))

	for _, ip := range inUse {
		used[ip] = true
	}

	total := hostCount(prefix)

	// Last index is broadcast.
	limit := total - 1

	candidate := func(index int64) (string, bool) {
		if index < reservedHostIndexes || index >= limit {
			return "", false
		}

		ip := ipAtIndex(prefix, index).String()

		if used[ip] {
			return "", false
		}

		return ip, true
	}

	for index := subnet.NextIPIndex; index < limit; index++ {
		if ip, ok := candidate(index); ok {
			return ip, s.commitCursor(ctx, subnet, index+1)
		}
	}

	// Wrap to reuse freed addresses.
	for index := int64(reservedHostIndexes); index < subnet.NextIPIndex && index < limit; index++ {
		if ip, ok := candidate(index); ok {
			return ip, s.commitCursor(ctx, subnet, index+1)
		}
	}

	return "", errors.ResourceExhausted("subnet has no free addresses").WithValues("subnet", subnet.Name)
}

// commitCursor persists the allocation cursor.  The caller already owns the
// address, a stale cursor only costs a longer walk next time.
func (s *Service) commitCursor(ctx context.Context, subnet *models.Subnetwork, next int64) error {
	subnet.NextIPIndex = next

	if err := s.repos.Subnets.UpdateNextIPIndex(ctx, subnet.ID, next); err != nil {
		return errors.Internal("failed to persist allocation cursor").WithError(err)
	}

	return nil
}

// ContainsIP reports whether an address falls inside the subnet's range.
func ContainsIP(subnet *models.Subnetwork, ip string) bool {
	prefix, err := netip.ParsePrefix(subnet.CIDR)
	if err != nil {
		return false
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	return prefix.Contains(addr)
}

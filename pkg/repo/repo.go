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

// Package repo provides typed CRUD over the metadata database.  Repositories
// return the package sentinel errors, the taxonomy mapping happens a layer up
// in the services.
package repo

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is raised when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is raised on unique constraint violations.
	ErrConflict = errors.New("record already exists")
)

// Queryer abstracts *sqlx.DB and *sqlx.Tx so the same repository code runs
// inside and outside transactions.
type Queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Repositories aggregates all repositories over a single queryer.
type Repositories struct {
	Projects        *ProjectRepo
	Buckets         *BucketRepo
	Objects         *ObjectRepo
	Sessions        *SessionRepo
	Events          *EventRepo
	Instances       *InstanceRepo
	Networks        *NetworkRepo
	Subnets         *SubnetRepo
	NICs            *NICRepo
	Addresses       *AddressRepo
	Firewalls       *FirewallRepo
	Routes          *RouteRepo
	Peerings        *PeeringRepo
	Routers         *RouterRepo
	VPNTunnels      *VPNTunnelRepo
	ServiceAccounts *ServiceAccountRepo
	Policies        *PolicyRepo
}

// New returns repositories bound to the given queryer.
func New(q Queryer) *Repositories {
	return &Repositories{
		Projects:        &ProjectRepo{q: q},
		Buckets:         &BucketRepo{q: q},
		Objects:         &ObjectRepo{q: q},
		Sessions:        &SessionRepo{q: q},
		Events:          &EventRepo{q: q},
		Instances:       &InstanceRepo{q: q},
		Networks:        &NetworkRepo{q: q},
		Subnets:         &SubnetRepo{q: q},
		NICs:            &NICRepo{q: q},
		Addresses:       &AddressRepo{q: q},
		Firewalls:       &FirewallRepo{q: q},
		Routes:          &RouteRepo{q: q},
		Peerings:        &PeeringRepo{q: q},
		Routers:         &RouterRepo{q: q},
		VPNTunnels:      &VPNTunnelRepo{q: q},
		ServiceAccounts: &ServiceAccountRepo{q: q},
		Policies:        &PolicyRepo{q: q},
	}
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrConflict
	}

	return err
}

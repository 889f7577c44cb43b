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

package compute

import (
	"sort"
	"strings"

	"github.com/eschercloudai/cumulus/pkg/errors"
)

// MachineType is one catalog entry, sized like the provider's shapes.
type MachineType struct {
	Name        string
	CPUs        float64
	MemoryMB    int64
	Description string
}

// machineTypes is the static catalog.
var machineTypes = map[string]MachineType{
	"e2-micro": {
		Name:        "e2-micro",
		CPUs:        0.25,
		MemoryMB:    1024,
		Description: "2 shared vCPUs, 1 GB",
	},
	"e2-small": {
		Name:        "e2-small",
		CPUs:        0.5,
		MemoryMB:    2048,
		Description: "2 shared vCPUs, 2 GB",
	},
	"e2-medium": {
		Name:        "e2-medium",
		CPUs:        1,
		MemoryMB:    4096,
		Description: "2 shared vCPUs, 4 GB",
	},
	"e2-standard-2": {
		Name:        "e2-standard-2",
		CPUs:        2,
		MemoryMB:    8192,
		Description: "2 vCPUs, 8 GB",
	},
	"e2-standard-4": {
		Name:        "e2-standard-4",
		CPUs:        4,
		MemoryMB:    16384,
		Description: "4 vCPUs, 16 GB",
	},
	"n1-standard-1": {
		Name:        "n1-standard-1",
		CPUs:        1,
		MemoryMB:    3840,
		Description: "1 vCPU, 3.75 GB",
	},
	"n1-standard-2": {
		Name:        "n1-standard-2",
		CPUs:        2,
		MemoryMB:    7680,
		Description: "2 vCPUs, 7.5 GB",
	},
}

// zones is the static zone catalog, three zones per default region.
var zones = map[string]bool{
	"us-central1-a":  true,
	"us-central1-b":  true,
	"us-central1-c":  true,
	"us-east1-b":     true,
	"us-east1-c":     true,
	"us-east1-d":     true,
	"europe-west1-b": true,
	"europe-west1-c": true,
	"europe-west1-d": true,
	"asia-east1-a":   true,
	"asia-east1-b":   true,
	"asia-east1-c":   true,
}

// ListMachineTypes returns the catalog sorted by name.
func ListMachineTypes() []MachineType {
	out := make([]MachineType, 0, len(machineTypes))

	for _, t := range machineTypes {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

// ListZones returns the zone catalog sorted.
func ListZones() []string {
	out := make([]string, 0, len(zones))

	for zone := range zones {
		out = append(out, zone)
	}

	sort.Strings(out)

	return out
}

// LookupMachineType validates a machine type, the error lists what is
// available.
func LookupMachineType(name string) (*MachineType, error) {
	t, ok := machineTypes[name]
	if !ok {
		return nil, errors.InvalidArgument("unknown machine type").
			WithValues("machineType", name, "available", strings.Join(machineTypeNames(), ", "))
	}

	return &t, nil
}

// ValidateZone validates a zone, the error lists what is available.
func ValidateZone(zone string) error {
	if !zones[zone] {
		return errors.InvalidArgument("unknown zone").
			WithValues("zone", zone, "available", strings.Join(ListZones(), ", "))
	}

	return nil
}

// RegionForZone strips the zone suffix, us-central1-a becomes us-central1.
func RegionForZone(zone string) string {
	if index := strings.LastIndex(zone, "-"); index > 0 {
		return zone[:index]
	}

	return zone
}

func machineTypeNames() []string {
	names := make([]string, 0, len(machineTypes))

	for name := range machineTypes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

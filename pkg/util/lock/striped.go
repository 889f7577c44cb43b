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

// Package lock provides fine-grained keyed mutual exclusion.  A striped lock
// serialises operations on the same key (object name, subnet, instance)
// while unrelated keys proceed in parallel, without a mutex per live key.
package lock

import (
	"hash/fnv"
	"sync"
)

// Striped is a fixed pool of mutexes indexed by key hash.
type Striped struct {
	stripes []sync.Mutex
}

// NewStriped returns a striped lock with the given number of stripes.
// Stripe counts should be a power of two well above expected concurrency.
func NewStriped(stripes int) *Striped {
	return &Striped{
		stripes: make([]sync.Mutex, stripes),
	}
}

func (s *Striped) index(key string) int {
	hash := fnv.New32a()

	// Writing to a hash never fails.
	//nolint:errcheck
	hash.Write([]byte(key))

	return int(hash.Sum32()) % len(s.stripes)
}

// Lock acquires the stripe for key.
func (s *Striped) Lock(key string) {
	s.stripes[s.index(key)].Lock()
}

// Unlock releases the stripe for key.
func (s *Striped) Unlock(key string) {
	s.stripes[s.index(key)].Unlock()
}

// LockPair acquires two keys in a stable order so callers holding pairs
// (e.g. cross bucket copies) cannot deadlock each other.
func (s *Striped) LockPair(a, b string) {
	i, j := s.index(a), s.index(b)

	if i == j {
		s.stripes[i].Lock()

		return
	}

	if i > j {
		i, j = j, i
	}

	s.stripes[i].Lock()
	s.stripes[j].Lock()
}

// UnlockPair releases a pair acquired with LockPair.
func (s *Striped) UnlockPair(a, b string) {
	i, j := s.index(a), s.index(b)

	if i == j {
		s.stripes[i].Unlock()

		return
	}

	s.stripes[i].Unlock()
	s.stripes[j].Unlock()
}

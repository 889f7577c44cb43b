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

// Package validation provides declarative field validation for request
// bodies and parameters.  Violations aggregate into a single 400 carrying
// every field-scoped message.
package validation

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/eschercloudai/cumulus/pkg/errors"
)

// Named field patterns.
var (
	ProjectID    = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)
	BucketName   = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,61}[a-z0-9]$`)
	ResourceName = regexp.MustCompile(`^[a-z]([-a-z0-9]{0,61}[a-z0-9])?$`)
	Zone         = regexp.MustCompile(`^[a-z]+-[a-z]+[0-9]+-[a-z]$`)
	Region       = regexp.MustCompile(`^[a-z]+-[a-z]+[0-9]+$`)
	Email        = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// sqlInjection catches the usual suspects in string fields that end
	// up in queries.  Parameterized queries are the real defence, this
	// is belt and braces the wire contract promises.
	sqlInjection = regexp.MustCompile(`(?i)('|--|;|/\*|\*/|\b(union|select|insert|update|delete|drop)\b\s)`)
)

// Violation is one field failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator accumulates violations across a request's fields.
type Validator struct {
	violations []Violation
}

// New creates an empty validator.
func New() *Validator {
	return &Validator{}
}

func (v *Validator) add(field, format string, args ...interface{}) {
	v.violations = append(v.violations, Violation{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// Required rejects empty values.
func (v *Validator) Required(field, value string) *Validator {
	if value == "" {
		v.add(field, "is required")
	}

	return v
}

// Pattern rejects non-empty values that miss a pattern.
func (v *Validator) Pattern(field, value string, pattern *regexp.Regexp) *Validator {
	if value != "" && !pattern.MatchString(value) {
		v.add(field, "does not match %s", pattern.String())
	}

	return v
}

// MaxLength bounds a string.
func (v *Validator) MaxLength(field, value string, max int) *Validator {
	if len(value) > max {
		v.add(field, "must be at most %d characters", max)
	}

	return v
}

// Range bounds a number.
func (v *Validator) Range(field string, value, min, max int64) *Validator {
	if value < min || value > max {
		v.add(field, "must be within [%d, %d]", min, max)
	}

	return v
}

// Enum rejects values outside a closed set.
func (v *Validator) Enum(field, value string, allowed ...string) *Validator {
	if value == "" {
		return v
	}

	for _, a := range allowed {
		if value == a {
			return v
		}
	}

	v.add(field, "must be one of %s", strings.Join(allowed, ", "))

	return v
}

// CIDR rejects malformed prefixes.
func (v *Validator) CIDR(field, value string) *Validator {
	if value == "" {
		return v
	}

	if _, err := netip.ParsePrefix(value); err != nil {
		v.add(field, "is not a valid CIDR")
	}

	return v
}

// NoSQL rejects strings smelling of SQL injection.
func (v *Validator) NoSQL(field, value string) *Validator {
	if sqlInjection.MatchString(value) {
		v.add(field, "contains forbidden characters")
	}

	return v
}

// Error returns the aggregated violation error, nil when everything held.
func (v *Validator) Error() error {
	if len(v.violations) == 0 {
		return nil
	}

	messages := make([]string, len(v.violations))

	for i, violation := range v.violations {
		messages[i] = violation.Field + " " + violation.Message
	}

	return errors.InvalidArgument("request validation failed").
		WithValues("violations", strings.Join(messages, "; "))
}

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

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrScan is raised when a database value cannot be decoded.
var ErrScan = errors.New("unable to scan column")

// jsonValue marshals a Go value into a TEXT column.
func jsonValue(v interface{}) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return string(data), nil
}

// jsonScan unmarshals a TEXT column into a Go value.
func jsonScan(dst interface{}, src interface{}) error {
	switch s := src.(type) {
	case nil:
		return nil
	case string:
		return json.Unmarshal([]byte(s), dst)
	case []byte:
		return json.Unmarshal(s, dst)
	default:
		return fmt.Errorf("%w: unexpected type %T", ErrScan, src)
	}
}

// StringMap is a JSON object column e.g. labels or custom metadata.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}

	return jsonValue(m)
}

func (m *StringMap) Scan(src interface{}) error {
	return jsonScan(m, src)
}

// StringList is a JSON array column e.g. tags or CIDR ranges.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}

	return jsonValue(l)
}

func (l *StringList) Scan(src interface{}) error {
	return jsonScan(l, src)
}

// LifecycleAction enumerates what a lifecycle rule may do.
type LifecycleAction string

const (
	LifecycleActionDelete  LifecycleAction = "Delete"
	LifecycleActionArchive LifecycleAction = "Archive"
)

// LifecycleRule ages objects out of a bucket.
type LifecycleRule struct {
	Action  LifecycleAction `json:"action"`
	AgeDays int             `json:"ageDays"`
}

// LifecycleRules is the bucket lifecycle configuration column.
type LifecycleRules []LifecycleRule

func (r LifecycleRules) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}

	return jsonValue(r)
}

func (r *LifecycleRules) Scan(src interface{}) error {
	return jsonScan(r, src)
}

// NotificationConfig describes a webhook subscribed to bucket changes.
type NotificationConfig struct {
	WebhookURL       string   `json:"webhookUrl"`
	EventTypes       []string `json:"eventTypes,omitempty"`
	ObjectNamePrefix string   `json:"objectNamePrefix,omitempty"`
	PayloadFormat    string   `json:"payloadFormat,omitempty"`
}

// Matches reports whether the config selects an event.  An empty event type
// list subscribes to everything.
func (c *NotificationConfig) Matches(eventType, objectName string) bool {
	if c.ObjectNamePrefix != "" && !strings.HasPrefix(objectName, c.ObjectNamePrefix) {
		return false
	}

	if len(c.EventTypes) == 0 {
		return true
	}

	for _, t := range c.EventTypes {
		if t == eventType {
			return true
		}
	}

	return false
}

// NotificationConfigs is the bucket notification column.
type NotificationConfigs []NotificationConfig

func (c NotificationConfigs) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}

	return jsonValue(c)
}

func (c *NotificationConfigs) Scan(src interface{}) error {
	return jsonScan(c, src)
}

// CORSRule is stored verbatim and echoed back on the wire.
type CORSRule struct {
	Origin         []string `json:"origin,omitempty"`
	Method         []string `json:"method,omitempty"`
	ResponseHeader []string `json:"responseHeader,omitempty"`
	MaxAgeSeconds  int      `json:"maxAgeSeconds,omitempty"`
}

// CORSRules is the bucket CORS column.
type CORSRules []CORSRule

func (c CORSRules) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}

	return jsonValue(c)
}

func (c *CORSRules) Scan(src interface{}) error {
	return jsonScan(c, src)
}

// ProtocolEntry is one allowed/denied protocol of a firewall rule.
type ProtocolEntry struct {
	Protocol string   `json:"IPProtocol"`
	Ports    []string `json:"ports,omitempty"`
}

// ProtocolEntries is the firewall protocol column.
type ProtocolEntries []ProtocolEntry

func (e ProtocolEntries) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}

	return jsonValue(e)
}

func (e *ProtocolEntries) Scan(src interface{}) error {
	return jsonScan(e, src)
}

// Binding grants a role to a set of members.
type Binding struct {
	Role      string   `json:"role"`
	Members   []string `json:"members"`
	Condition *string  `json:"condition,omitempty"`
}

// Bindings is the IAM policy bindings column.
type Bindings []Binding

func (b Bindings) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}

	return jsonValue(b)
}

func (b *Bindings) Scan(src interface{}) error {
	return jsonScan(b, src)
}

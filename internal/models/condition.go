package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Comparison operators accepted in rule conditions. Equality on floats is
// kept for compatibility with existing rules; it only fires on exact matches.
const (
	OpGreaterThan  = ">"
	OpLessThan     = "<"
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpEqual        = "=="
)

// ValidOperator reports whether op is one of the supported comparisons.
func ValidOperator(op string) bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual, OpEqual:
		return true
	}
	return false
}

// SystemMetricCondition triggers on the newest sample of a host metric
// inside a sliding time window.
type SystemMetricCondition struct {
	MetricType        string  `json:"metric_type"`
	Hostname          string  `json:"hostname,omitempty"` // empty = collector host
	Operator          string  `json:"operator"`
	Threshold         float64 `json:"threshold"`
	TimeWindowMinutes int     `json:"time_window_minutes,omitempty"` // 0 = 5
}

// ServiceHealthCondition triggers on the cached result of a service probe.
// MaxResponseTimeMS of 0 falls back to the configured global default.
type ServiceHealthCondition struct {
	ServiceName       string `json:"service_name"`
	MaxResponseTimeMS int64  `json:"max_response_time_ms,omitempty"`
}

// ProcessMetricCondition triggers on the newest sample of one process field.
type ProcessMetricCondition struct {
	ProcessName string  `json:"process_name"`
	Hostname    string  `json:"hostname,omitempty"`
	MetricField string  `json:"metric_field"`
	Operator    string  `json:"operator"`
	Threshold   float64 `json:"threshold"`
}

// Condition is the typed payload of an AlertRule. Exactly one branch is set,
// matching the rule's RuleType. On the wire and in the database it stays a
// flat JSON object (the branch is recognized by its discriminating key), so
// rules written by earlier clients keep working.
type Condition struct {
	SystemMetric  *SystemMetricCondition  `json:"-"`
	ServiceHealth *ServiceHealthCondition `json:"-"`
	ProcessMetric *ProcessMetricCondition `json:"-"`
}

func (c Condition) MarshalJSON() ([]byte, error) {
	switch {
	case c.SystemMetric != nil:
		return json.Marshal(c.SystemMetric)
	case c.ServiceHealth != nil:
		return json.Marshal(c.ServiceHealth)
	case c.ProcessMetric != nil:
		return json.Marshal(c.ProcessMetric)
	}
	return []byte("{}"), nil
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var probe struct {
		MetricType  string `json:"metric_type"`
		ServiceName string `json:"service_name"`
		ProcessName string `json:"process_name"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	*c = Condition{}
	switch {
	case probe.ProcessName != "":
		c.ProcessMetric = &ProcessMetricCondition{}
		return json.Unmarshal(data, c.ProcessMetric)
	case probe.ServiceName != "":
		c.ServiceHealth = &ServiceHealthCondition{}
		return json.Unmarshal(data, c.ServiceHealth)
	case probe.MetricType != "":
		c.SystemMetric = &SystemMetricCondition{}
		return json.Unmarshal(data, c.SystemMetric)
	}
	return fmt.Errorf("condition missing a recognized key (metric_type, service_name or process_name)")
}

func (c *Condition) Scan(value interface{}) error {
	if value == nil {
		*c = Condition{}
		return nil
	}
	bytes, err := toBytes(value)
	if err != nil {
		return err
	}
	if err := c.UnmarshalJSON(bytes); err != nil {
		// An unrecognized stored shape must not poison list queries; it
		// surfaces as an empty condition and fails that rule's evaluation
		// instead.
		*c = Condition{}
	}
	return nil
}

func (c Condition) Value() (driver.Value, error) {
	b, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Validate checks that the populated branch agrees with ruleType and that
// the branch itself is complete.
func (c Condition) Validate(ruleType string) error {
	switch ruleType {
	case RuleTypeSystemMetric:
		if c.SystemMetric == nil {
			return fmt.Errorf("rule type %s requires a metric condition", ruleType)
		}
		return c.SystemMetric.validate()
	case RuleTypeServiceHealth:
		if c.ServiceHealth == nil {
			return fmt.Errorf("rule type %s requires a service condition", ruleType)
		}
		return c.ServiceHealth.validate()
	case RuleTypeProcessMetric:
		if c.ProcessMetric == nil {
			return fmt.Errorf("rule type %s requires a process condition", ruleType)
		}
		return c.ProcessMetric.validate()
	}
	return fmt.Errorf("unknown rule type %q", ruleType)
}

func (c *SystemMetricCondition) validate() error {
	if c.MetricType == "" {
		return fmt.Errorf("metric_type is required")
	}
	if !ValidOperator(c.Operator) {
		return fmt.Errorf("invalid operator %q", c.Operator)
	}
	if c.TimeWindowMinutes < 0 {
		return fmt.Errorf("time_window_minutes must be >= 0")
	}
	return nil
}

func (c *ServiceHealthCondition) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.MaxResponseTimeMS < 0 {
		return fmt.Errorf("max_response_time_ms must be >= 0")
	}
	return nil
}

func (c *ProcessMetricCondition) validate() error {
	if c.ProcessName == "" {
		return fmt.Errorf("process_name is required")
	}
	if c.MetricField == "" {
		return fmt.Errorf("metric_field is required")
	}
	if !ValidOperator(c.Operator) {
		return fmt.Errorf("invalid operator %q", c.Operator)
	}
	return nil
}

// WindowMinutes returns the configured evaluation window, defaulting to 5.
func (c *SystemMetricCondition) WindowMinutes() int {
	if c.TimeWindowMinutes <= 0 {
		return 5
	}
	return c.TimeWindowMinutes
}

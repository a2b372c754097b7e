// Package logging provides the structured-field helper shared by every
// orchestrator-core component that logs through logrus.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// StandardFields accumulates a chainable set of structured logging fields.
type StandardFields struct {
	fields logrus.Fields
}

// NewFields returns an empty StandardFields builder.
func NewFields() StandardFields {
	return StandardFields{fields: logrus.Fields{}}
}

// Component sets the emitting component name.
func (f StandardFields) Component(name string) StandardFields {
	f.fields["component"] = name
	return f
}

// Operation sets the operation being performed.
func (f StandardFields) Operation(op string) StandardFields {
	f.fields["operation"] = op
	return f
}

// Resource sets the resource type and, if non-empty, the resource name.
func (f StandardFields) Resource(resourceType, name string) StandardFields {
	f.fields["resource_type"] = resourceType
	if name != "" {
		f.fields["resource_name"] = name
	}
	return f
}

// Duration records an elapsed duration in milliseconds.
func (f StandardFields) Duration(d time.Duration) StandardFields {
	f.fields["duration_ms"] = d.Milliseconds()
	return f
}

// Error records err.Error() when err is non-nil; a nil err is a no-op.
func (f StandardFields) Error(err error) StandardFields {
	if err != nil {
		f.fields["error"] = err.Error()
	}
	return f
}

// With merges an arbitrary key/value into the field set.
func (f StandardFields) With(key string, value interface{}) StandardFields {
	f.fields[key] = value
	return f
}

// ToLogrus returns the accumulated fields as logrus.Fields.
func (f StandardFields) ToLogrus() logrus.Fields {
	return f.fields
}

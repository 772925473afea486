package models

import (
	"fmt"
	"strconv"
)

// QueryField is a conference attribute that can be filtered on.
type QueryField string

const (
	FieldCity         QueryField = "CITY"
	FieldTopic        QueryField = "TOPIC"
	FieldMonth        QueryField = "MONTH"
	FieldMaxAttendees QueryField = "MAX_ATTENDEES"
)

// QueryOperator compares a field with a filter value.
type QueryOperator string

const (
	OpEQ   QueryOperator = "EQ"
	OpNE   QueryOperator = "NE"
	OpGT   QueryOperator = "GT"
	OpGTEQ QueryOperator = "GTEQ"
	OpLT   QueryOperator = "LT"
	OpLTEQ QueryOperator = "LTEQ"
)

// SQL returns the comparison operator.
func (o QueryOperator) SQL() string {
	switch o {
	case OpNE:
		return "<>"
	case OpGT:
		return ">"
	case OpGTEQ:
		return ">="
	case OpLT:
		return "<"
	case OpLTEQ:
		return "<="
	}
	return "="
}

// Inequality reports whether the operator is a range comparison.
func (o QueryOperator) Inequality() bool {
	return o == OpGT || o == OpGTEQ || o == OpLT || o == OpLTEQ
}

// Numeric reports whether the field holds an integer.
func (f QueryField) Numeric() bool {
	return f == FieldMonth || f == FieldMaxAttendees
}

// Column returns the conferences column backing the field.
func (f QueryField) Column() string {
	switch f {
	case FieldCity:
		return "city"
	case FieldTopic:
		return "topics"
	case FieldMonth:
		return "month"
	case FieldMaxAttendees:
		return "max_attendees"
	}
	return ""
}

// Filter is one predicate of a conference query.
type Filter struct {
	Field    QueryField    `json:"field" binding:"required"`
	Operator QueryOperator `json:"operator" binding:"required"`
	Value    string        `json:"value"`
}

// ConferenceQuery is a conjunction of filters.
type ConferenceQuery struct {
	Filters []Filter `json:"filters"`
}

// Validate checks fields and operators and returns the field used for range
// comparisons, if any. At most one field may use a range operator.
func (q ConferenceQuery) Validate() (QueryField, error) {
	var inequality QueryField
	for _, f := range q.Filters {
		if f.Field.Column() == "" {
			return "", fmt.Errorf("unknown field %q", f.Field)
		}
		switch f.Operator {
		case OpEQ, OpNE, OpGT, OpGTEQ, OpLT, OpLTEQ:
		default:
			return "", fmt.Errorf("unknown operator %q", f.Operator)
		}
		if f.Field == FieldTopic && f.Operator.Inequality() {
			return "", fmt.Errorf("field %s only supports EQ and NE", f.Field)
		}
		if f.Field.Numeric() {
			if _, err := strconv.Atoi(f.Value); err != nil {
				return "", fmt.Errorf("field %s needs an integer value", f.Field)
			}
		}
		if f.Operator.Inequality() {
			if inequality != "" && inequality != f.Field {
				return "", fmt.Errorf("range filters on %s and %s cannot be combined", inequality, f.Field)
			}
			inequality = f.Field
		}
	}
	return inequality, nil
}

// Arg returns the filter value typed for its column.
func (f Filter) Arg() any {
	if f.Field.Numeric() {
		n, _ := strconv.Atoi(f.Value)
		return n
	}
	return f.Value
}

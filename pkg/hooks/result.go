// Package hooks runs plug-in hooks at the trigger points of the order lifecycle.
//
// Every hook reports a Result: a status, an output message and an error message. An empty
// status, SUCCESS and WARNING let the remaining hooks run; FAILURE halts the trigger point.
package hooks

import (
	"fmt"
)

type Status string

const (
	StatusNone    Status = ""
	StatusSuccess Status = "SUCCESS"
	StatusWarning Status = "WARNING"
	StatusFailure Status = "FAILURE"
)

// Valid checks if the status is one of the four known values
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusSuccess, StatusWarning, StatusFailure:
		return true
	default:
		return false
	}
}

// Halts reports whether the status stops the remaining hooks of a trigger point.
func (s Status) Halts() bool {
	return s == StatusFailure
}

// Label is the status as used in logs and metrics, where an empty value is awkward.
func (s Status) Label() string {
	if s == StatusNone {
		return "NONE"
	}
	return string(s)
}

type Result struct {
	Status Status `json:"status" yaml:"status"`
	Output string `json:"output" yaml:"output"`
	Error  string `json:"error" yaml:"error"`
}

func Neutral() Result {
	return Result{}
}

func Success(output string) Result {
	return Result{Status: StatusSuccess, Output: output}
}

func Warning(output string) Result {
	return Result{Status: StatusWarning, Output: output}
}

func Failure(output, errMsg string) Result {
	return Result{Status: StatusFailure, Output: output, Error: errMsg}
}

// Trigger names a point in the order lifecycle where hooks run.
type Trigger string

const (
	// OrderSubmission runs once when an order is submitted.
	OrderSubmission Trigger = "order_submission"
	// OrderApproval runs every time an approver approves a pending order.
	OrderApproval Trigger = "order_approval"
	// PreOrderExecution runs once after an order is fully approved, before it is released.
	PreOrderExecution Trigger = "pre_order_execution"
)

var Triggers = []Trigger{OrderSubmission, OrderApproval, PreOrderExecution}

func (t Trigger) Valid() bool {
	switch t {
	case OrderSubmission, OrderApproval, PreOrderExecution:
		return true
	default:
		return false
	}
}

// FailureError is returned when a hook halts a trigger point.
type FailureError struct {
	Trigger Trigger
	Hook    string
	Result  Result
}

func (e *FailureError) Error() string {
	msg := e.Result.Error
	if msg == "" {
		msg = e.Result.Output
	}
	return fmt.Sprintf("hook %q failed at %s: %s", e.Hook, e.Trigger, msg)
}

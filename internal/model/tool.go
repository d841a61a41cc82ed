package model

import "time"

// Domain tool names
const (
	ToolCheckAvailability = "check_availability"
	ToolCheckPetPolicy    = "check_pet_policy"
	ToolGetPricing        = "get_pricing"
)

// ToolStatus is the typed outcome of a tool call
type ToolStatus string

const (
	ToolStatusOK                      ToolStatus = "ok"
	ToolStatusNotFound                ToolStatus = "not_found"
	ToolStatusInsufficientInformation ToolStatus = "insufficient_information"
	ToolStatusError                   ToolStatus = "error"
)

// ToolCall is a request to run one domain tool
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of a ToolCall; it lives only for one turn
type ToolResult struct {
	Call     ToolCall      `json:"call"`
	Status   ToolStatus    `json:"status"`
	Payload  any           `json:"payload,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Missing  []Field       `json:"missing,omitempty"`
	Duration time.Duration `json:"-"`
}

// OK reports whether the call succeeded
func (r ToolResult) OK() bool {
	return r.Status == ToolStatusOK
}

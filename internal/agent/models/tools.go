package models

// ToolCall is a single tool invocation extracted from model output. Argument
// values are strings exactly as they appeared on the wire; tools coerce.
type ToolCall struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args"`

	// Fallback marks a call recovered by the degraded delimiter scan rather
	// than the structured parse.
	Fallback bool `json:"fallback,omitempty"`
}

// ToolStatus is the outcome class of a tool execution.
type ToolStatus string

const (
	ToolStatusOK    ToolStatus = "ok"
	ToolStatusError ToolStatus = "error"
)

// ToolResult is what a tool execution produced.
type ToolResult struct {
	Name   string     `json:"name"`
	Status ToolStatus `json:"status"`
	Result string     `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// OK reports whether the execution succeeded.
func (r ToolResult) OK() bool {
	return r.Status == ToolStatusOK
}

// Summary returns the one-line text recorded in the caller's history.
func (r ToolResult) Summary() string {
	if r.Status == ToolStatusError {
		if r.Error != "" {
			return "error: " + r.Error
		}
		return "error"
	}
	if r.Result != "" {
		return r.Result
	}
	return "ok"
}

// OKResult builds a successful ToolResult.
func OKResult(name, result string) ToolResult {
	return ToolResult{Name: name, Status: ToolStatusOK, Result: result}
}

// ErrorResult builds a failed ToolResult.
func ErrorResult(name, errMsg string) ToolResult {
	return ToolResult{Name: name, Status: ToolStatusError, Error: errMsg}
}

package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditFile is the audit log name inside the simreplay home directory.
const AuditFile = "audit.jsonl"

// AuditEntry records one MCP tool invocation. Paths are never logged in
// full.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends entries to a JSONL file. It is safe for concurrent
// use, and a nil AuditLogger ignores every call.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens dir/audit.jsonl for appending. On failure it prints
// a warning to stderr and returns nil.
func NewAuditLogger(dir string) *AuditLogger {
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", dir, err)
		return nil
	}
	path := filepath.Join(dir, AuditFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log appends entry as one JSON line.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.file.Write(data)
}

// Close closes the log file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// sanitizeToolParams keeps the values of small scalar parameters and logs
// only the presence of paths and identifiers.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	safeValueParams := map[string]bool{
		"world":    true,
		"agent":    true,
		"status":   true,
		"limit":    true,
		"from":     true,
		"to":       true,
		"horizon":  true,
		"scenario": true,
	}
	presenceOnlyParams := map[string]bool{
		"data_path":   true,
		"export_path": true,
		"plot_path":   true,
		"id":          true,
	}

	result := make(map[string]string)
	set := 0
	for key, val := range params {
		if isZero(val) {
			continue
		}
		set++
		switch {
		case safeValueParams[key]:
			result[key] = fmt.Sprintf("%v", val)
		case presenceOnlyParams[key]:
			result[key] = "(set)"
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", set)
	return result
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	case float64:
		return x == 0
	case bool:
		return !x
	}
	return false
}

// auditTool logs a tool invocation.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}

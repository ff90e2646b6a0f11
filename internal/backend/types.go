// Package backend implements the three pluggable execution backends:
// PowerShell, SQL, and agent delegation. Each satisfies the same contract.
package backend

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

// TimeoutReturnCode is the sentinel return code for a backend that hit its
// deadline.
const TimeoutReturnCode = -1

// Result is the common outcome shape every backend returns.
type Result struct {
	Success     bool
	Output      string
	Error       string
	ReturnCode  int
	TerminalNow bool
	Metadata    map[string]string
}

// Backend is the contract every execution backend implements.
type Backend interface {
	Execute(ctx context.Context, cfg *jobstore.Config, executionID string, deadline time.Time) (*Result, error)
}

package jobstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/jobrunner/internal/apierr"
)

// MaxNameLength is the job name length cap.
const MaxNameLength = 100

var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// ValidateJobName enforces the non-empty, filesystem-safe name invariant.
func ValidateJobName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apierr.Wrap(apierr.ErrValidation, "job name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return apierr.Wrap(apierr.ErrValidation, fmt.Sprintf("job name must be %d characters or fewer", MaxNameLength))
	}
	if invalidNameChars.MatchString(name) {
		return apierr.Wrap(apierr.ErrValidation, "job name contains invalid characters")
	}
	return nil
}

// dangerousSQLKeywords blocks mutating statements from user-created SQL
// jobs at creation time.
var dangerousSQLKeywords = []string{
	"DROP", "DELETE", "TRUNCATE", "ALTER", "CREATE", "INSERT", "UPDATE",
	"EXEC", "EXECUTE", "SP_", "XP_", "OPENQUERY", "OPENROWSET",
}

// ValidateSQLQuery rejects queries containing a denylisted keyword or that
// are not a SELECT. This runs at job-creation time; the SQL backend itself
// does not re-validate.
func ValidateSQLQuery(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return apierr.Wrap(apierr.ErrValidation, "sql query cannot be empty")
	}
	upper := strings.ToUpper(q)
	for _, kw := range dangerousSQLKeywords {
		if strings.Contains(upper, kw) {
			return apierr.Wrap(apierr.ErrValidation, fmt.Sprintf("potentially dangerous sql keyword detected: %s", kw))
		}
	}
	if !strings.HasPrefix(upper, "SELECT") {
		return apierr.Wrap(apierr.ErrValidation, "only SELECT queries are allowed")
	}
	return nil
}

// ValidateTimeout enforces a 1s-24h range.
func ValidateTimeout(seconds int) error {
	if seconds < 1 {
		return apierr.Wrap(apierr.ErrValidation, "timeout must be greater than 0")
	}
	if seconds > 86400 {
		return apierr.Wrap(apierr.ErrValidation, "timeout cannot exceed 24 hours (86400 seconds)")
	}
	return nil
}

// ValidateRetryCount enforces a 0-10 range.
func ValidateRetryCount(n int) error {
	if n < 0 {
		return apierr.Wrap(apierr.ErrValidation, "retry count cannot be negative")
	}
	if n > 10 {
		return apierr.Wrap(apierr.ErrValidation, "retry count cannot exceed 10")
	}
	return nil
}

// ValidateConfig runs the job-type-specific checks applicable at create and
// update time.
func ValidateConfig(cfg *Config) error {
	if cfg.Type == TypeUnknown {
		return apierr.Wrap(apierr.ErrValidation, "job type must be one of powershell, sql, agent_job")
	}
	if err := ValidateTimeout(cfg.Timeout); err != nil {
		return err
	}
	if err := ValidateRetryCount(cfg.MaxRetries); err != nil {
		return err
	}
	switch cfg.Type {
	case TypePowerShell:
		if cfg.PowerShell == nil || (cfg.PowerShell.InlineScript == "" && cfg.PowerShell.ScriptPath == "") {
			return apierr.Wrap(apierr.ErrValidation, "powershell job requires inlineScript or scriptPath")
		}
	case TypeSQL:
		if cfg.SQL == nil {
			return apierr.Wrap(apierr.ErrValidation, "sql job requires a query")
		}
		if err := ValidateSQLQuery(cfg.SQL.Query); err != nil {
			return err
		}
		if cfg.SQL.Connection == "" {
			return apierr.Wrap(apierr.ErrValidation, "sql job requires a connection name")
		}
	case TypeAgentJob:
		if cfg.Agent == nil || cfg.Agent.AgentPool == "" {
			return apierr.Wrap(apierr.ErrValidation, "agent job requires agent_pool")
		}
		if len(cfg.Agent.Steps) == 0 {
			return apierr.Wrap(apierr.ErrValidation, "agent job requires at least one step")
		}
	}
	return nil
}

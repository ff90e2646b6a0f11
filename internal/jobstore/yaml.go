package jobstore

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlDoc mirrors the persisted YAML job format. Parameters is left as a
// raw node because the format accepts three different shapes for it.
type yamlDoc struct {
	Name              string        `yaml:"name"`
	Type              string        `yaml:"type"`
	InlineScript      string        `yaml:"inlineScript"`
	ScriptPath        string        `yaml:"scriptPath"`
	ExecutionPolicy   string        `yaml:"executionPolicy"`
	Parameters        yaml.Node     `yaml:"parameters"`
	WorkingDirectory  string        `yaml:"workingDirectory"`
	Query             string        `yaml:"query"`
	Connection        string        `yaml:"connection"`
	MaxRows           int           `yaml:"max_rows"`
	AgentPool         string        `yaml:"agent_pool"`
	ExecutionStrategy string        `yaml:"execution_strategy"`
	Steps             []Step        `yaml:"steps"`
	Schedule          *yamlSchedule `yaml:"schedule"`
	Timeout           int           `yaml:"timeout"`
	RetryCount        int           `yaml:"retry_count"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        int           `yaml:"retry_delay"`
	RetryOnTimeout    bool          `yaml:"retry_on_timeout"`
}

type yamlSchedule struct {
	Type     string            `yaml:"type"`
	Expression string          `yaml:"expression"`
	Cron     string            `yaml:"cron"`
	Interval *IntervalSchedule `yaml:"interval"`
	RunDate  string            `yaml:"run_date"`
	Timezone string            `yaml:"timezone"`
}

// ParseYAML turns a persisted YAML blob into a Config. It never returns an
// error for malformed/missing YAML; instead it returns a default Config
// with Type == TypeUnknown, matching the store's "flatten without raising"
// contract.
func ParseYAML(raw string) (name string, cfg *Config) {
	if raw == "" {
		return "", &Config{Type: TypeUnknown, Timeout: DefaultTimeoutSeconds}
	}

	var doc yamlDoc
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return "", &Config{Type: TypeUnknown, Timeout: DefaultTimeoutSeconds}
	}

	cfg = &Config{
		Timeout:        doc.Timeout,
		RetryCount:     doc.RetryCount,
		MaxRetries:     doc.MaxRetries,
		RetryDelay:     doc.RetryDelay,
		RetryOnTimeout: doc.RetryOnTimeout,
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeoutSeconds
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelaySeconds
	}

	switch doc.Type {
	case TypePowerShell:
		cfg.Type = TypePowerShell
		params, _ := parseParameters(&doc.Parameters)
		policy := doc.ExecutionPolicy
		if policy == "" {
			policy = "RemoteSigned"
		}
		cfg.PowerShell = &PowerShellConfig{
			InlineScript:     doc.InlineScript,
			ScriptPath:       doc.ScriptPath,
			ExecutionPolicy:  policy,
			Parameters:       params,
			WorkingDirectory: doc.WorkingDirectory,
		}
	case TypeSQL:
		cfg.Type = TypeSQL
		maxRows := doc.MaxRows
		if maxRows <= 0 {
			maxRows = 1000
		}
		cfg.SQL = &SQLConfig{
			Query:      doc.Query,
			Connection: doc.Connection,
			MaxRows:    maxRows,
		}
	case TypeAgentJob:
		cfg.Type = TypeAgentJob
		cfg.Agent = &AgentConfig{
			AgentPool:         doc.AgentPool,
			ExecutionStrategy: doc.ExecutionStrategy,
			Steps:             doc.Steps,
		}
	default:
		cfg.Type = TypeUnknown
	}

	if doc.Schedule != nil {
		cfg.Schedule = parseSchedule(doc.Schedule)
	}

	return doc.Name, cfg
}

func parseSchedule(s *yamlSchedule) *Schedule {
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	switch s.Type {
	case "cron":
		expr := s.Expression
		if expr == "" {
			expr = s.Cron
		}
		return &Schedule{Type: "cron", Cron: &CronSchedule{Expression: expr, Timezone: tz}}
	case "interval":
		iv := s.Interval
		if iv == nil {
			iv = &IntervalSchedule{}
		}
		iv.Timezone = tz
		return &Schedule{Type: "interval", Interval: iv}
	case "date":
		t, err := time.Parse(time.RFC3339, s.RunDate)
		if err != nil {
			t, _ = time.Parse("2006-01-02T15:04:05", s.RunDate)
		}
		return &Schedule{Type: "date", Date: &DateSchedule{RunDate: t, Timezone: tz}}
	default:
		return nil
	}
}

// parseParameters accepts all three PowerShell parameter shapes: array of
// {name,value} maps, array of "name=value" strings, or a single mapping.
func parseParameters(node *yaml.Node) ([]Param, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}

	switch node.Kind {
	case yaml.SequenceNode:
		var params []Param
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.MappingNode:
				var p Param
				if err := item.Decode(&p); err != nil {
					return nil, fmt.Errorf("decode parameter map: %w", err)
				}
				params = append(params, p)
			case yaml.ScalarNode:
				var s string
				if err := item.Decode(&s); err != nil {
					return nil, err
				}
				name, value := splitKV(s)
				params = append(params, Param{Name: name, Value: value})
			default:
				return nil, fmt.Errorf("unsupported parameter entry kind %v", item.Kind)
			}
		}
		return params, nil
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode parameter map: %w", err)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		params := make([]Param, 0, len(keys))
		for _, k := range keys {
			params = append(params, Param{Name: k, Value: m[k]})
		}
		return params, nil
	default:
		return nil, nil
	}
}

func splitKV(s string) (name, value string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

// RenderYAML rebuilds the canonical YAML blob from a parsed Config. The
// canonical parameter form is always the array-of-{name,value} shape.
// UpdateJob and the job update route take only a full YAML blob; no
// flat-field update path calls this function.
func RenderYAML(name string, cfg *Config) (string, error) {
	doc := yamlDoc{
		Name:           name,
		Type:           cfg.Type,
		Timeout:        cfg.Timeout,
		RetryCount:     cfg.RetryCount,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		RetryOnTimeout: cfg.RetryOnTimeout,
	}

	switch cfg.Type {
	case TypePowerShell:
		if cfg.PowerShell != nil {
			doc.InlineScript = cfg.PowerShell.InlineScript
			doc.ScriptPath = cfg.PowerShell.ScriptPath
			doc.ExecutionPolicy = cfg.PowerShell.ExecutionPolicy
			doc.WorkingDirectory = cfg.PowerShell.WorkingDirectory
			if len(cfg.PowerShell.Parameters) > 0 {
				var node yaml.Node
				if err := node.Encode(cfg.PowerShell.Parameters); err != nil {
					return "", err
				}
				doc.Parameters = node
			}
		}
	case TypeSQL:
		if cfg.SQL != nil {
			doc.Query = cfg.SQL.Query
			doc.Connection = cfg.SQL.Connection
			doc.MaxRows = cfg.SQL.MaxRows
		}
	case TypeAgentJob:
		if cfg.Agent != nil {
			doc.AgentPool = cfg.Agent.AgentPool
			doc.ExecutionStrategy = cfg.Agent.ExecutionStrategy
			doc.Steps = cfg.Agent.Steps
		}
	}

	if cfg.Schedule != nil {
		doc.Schedule = renderSchedule(cfg.Schedule)
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("render yaml: %w", err)
	}
	return string(out), nil
}

func renderSchedule(s *Schedule) *yamlSchedule {
	switch s.Type {
	case "cron":
		if s.Cron == nil {
			return nil
		}
		return &yamlSchedule{Type: "cron", Expression: s.Cron.Expression, Timezone: s.Cron.Timezone}
	case "interval":
		if s.Interval == nil {
			return nil
		}
		return &yamlSchedule{Type: "interval", Interval: s.Interval, Timezone: s.Interval.Timezone}
	case "date":
		if s.Date == nil {
			return nil
		}
		return &yamlSchedule{Type: "date", RunDate: s.Date.RunDate.Format(time.RFC3339), Timezone: s.Date.Timezone}
	default:
		return nil
	}
}

// Flatten builds the API convenience view returned alongside a job.
func Flatten(cfg *Config) FlatView {
	fv := FlatView{JobType: cfg.Type, Timeout: cfg.Timeout}
	if cfg.Schedule != nil {
		fv.ScheduleType = cfg.Schedule.Type
		switch cfg.Schedule.Type {
		case "cron":
			if cfg.Schedule.Cron != nil {
				fv.CronExpression = cfg.Schedule.Cron.Expression
				fv.Timezone = cfg.Schedule.Cron.Timezone
			}
		case "interval":
			if cfg.Schedule.Interval != nil {
				fv.Timezone = cfg.Schedule.Interval.Timezone
			}
		case "date":
			if cfg.Schedule.Date != nil {
				fv.Timezone = cfg.Schedule.Date.Timezone
			}
		}
	}
	switch cfg.Type {
	case TypePowerShell:
		if cfg.PowerShell != nil {
			if cfg.PowerShell.InlineScript != "" {
				fv.ScriptContent = cfg.PowerShell.InlineScript
			} else {
				fv.ScriptContent = cfg.PowerShell.ScriptPath
			}
		}
	case TypeSQL:
		if cfg.SQL != nil {
			fv.Query = cfg.SQL.Query
			fv.Connection = cfg.SQL.Connection
		}
	}
	return fv
}

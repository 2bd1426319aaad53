package cloudjob

import (
	"cloudjobs/internal/config"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Budgets are the polling budgets of the waits a workflow performs.
type Budgets struct {
	Task         PollConfig
	Subscription PollConfig
	Database     PollConfig
	Connect      PollConfig // endpoint verification before import
}

// DefaultBudgets returns the budgets used when nothing is configured.
func DefaultBudgets() Budgets {
	return Budgets{
		Task:         PollConfig{Interval: 1 * time.Second, Timeout: 3 * time.Minute, MaxTransientErrors: 5},
		Subscription: PollConfig{Interval: 2 * time.Second, Timeout: 3 * time.Minute, MaxTransientErrors: 5},
		Database:     PollConfig{Interval: 2 * time.Second, Timeout: 10 * time.Minute, MaxTransientErrors: 5},
		Connect:      PollConfig{Interval: 2 * time.Second, Timeout: 1 * time.Minute, MaxTransientErrors: 5},
	}
}

func (b Budgets) withDefaults() Budgets {
	def := DefaultBudgets()
	b.Task = b.Task.withDefaults(def.Task)
	b.Subscription = b.Subscription.withDefaults(def.Subscription)
	b.Database = b.Database.withDefaults(def.Database)
	b.Connect = b.Connect.withDefaults(def.Connect)
	return b
}

// LoadBudgetsFromEnv applies POLL_* overrides on top of base.
func LoadBudgetsFromEnv(base Budgets) Budgets {
	base.Task = pollFromEnv("POLL_TASK", base.Task)
	base.Subscription = pollFromEnv("POLL_SUBSCRIPTION", base.Subscription)
	base.Database = pollFromEnv("POLL_DATABASE", base.Database)
	base.Connect = pollFromEnv("POLL_CONNECT", base.Connect)
	return base
}

func pollFromEnv(prefix string, p PollConfig) PollConfig {
	return PollConfig{
		Interval:           config.GetDurationEnv(prefix+"_INTERVAL", p.Interval),
		Timeout:            config.GetDurationEnv(prefix+"_TIMEOUT", p.Timeout),
		MaxTransientErrors: config.GetIntEnv(prefix+"_MAX_TRANSIENT_ERRORS", p.MaxTransientErrors),
	}
}

// budgetsFile is the on-disk form. Durations are Go duration strings.
type budgetsFile struct {
	Task         *pollFile `yaml:"task"`
	Subscription *pollFile `yaml:"subscription"`
	Database     *pollFile `yaml:"database"`
	Connect      *pollFile `yaml:"connect"`
}

type pollFile struct {
	Interval           string `yaml:"interval"`
	Timeout            string `yaml:"timeout"`
	MaxTransientErrors *int   `yaml:"maxTransientErrors"`
}

func (f *pollFile) apply(p PollConfig) (PollConfig, error) {
	if f == nil {
		return p, nil
	}
	if f.Interval != "" {
		d, err := time.ParseDuration(f.Interval)
		if err != nil {
			return p, fmt.Errorf("interval: %w", err)
		}
		p.Interval = d
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return p, fmt.Errorf("timeout: %w", err)
		}
		p.Timeout = d
	}
	if f.MaxTransientErrors != nil {
		p.MaxTransientErrors = *f.MaxTransientErrors
	}
	return p, nil
}

// ParseBudgets overlays the YAML document data on base. Sections and fields
// that are absent keep their base values.
func ParseBudgets(data []byte, base Budgets) (Budgets, error) {
	var f budgetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return base, fmt.Errorf("parse polling budgets: %w", err)
	}

	sections := []struct {
		name string
		file *pollFile
		dst  *PollConfig
	}{
		{"task", f.Task, &base.Task},
		{"subscription", f.Subscription, &base.Subscription},
		{"database", f.Database, &base.Database},
		{"connect", f.Connect, &base.Connect},
	}
	for _, s := range sections {
		p, err := s.file.apply(*s.dst)
		if err != nil {
			return base, fmt.Errorf("polling budget %s: %w", s.name, err)
		}
		*s.dst = p
	}
	return base.withDefaults(), nil
}

// LoadBudgetsFile reads a YAML budget file and overlays it on base.
func LoadBudgetsFile(path string, base Budgets) (Budgets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read polling budgets: %w", err)
	}
	return ParseBudgets(data, base)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/poolhall/go/internal/table"
	"github.com/mcdev12/poolhall/go/internal/table/chat"
	"gopkg.in/yaml.v3"
)

// Rules are the table timings and chat limits, optionally read from a YAML file.
// Durations are written as Go duration strings ("30s", "500ms").
type Rules struct {
	LivenessCheckInterval time.Duration `yaml:"liveness_check_interval"`
	ParticipantTimeout    time.Duration `yaml:"participant_timeout"`
	CueHoldTimeout        time.Duration `yaml:"cue_hold_timeout"`
	ShotStartSkew         time.Duration `yaml:"shot_start_skew"`
	ShotWatchdog          time.Duration `yaml:"shot_watchdog"`
	ResetSettleDelay      time.Duration `yaml:"reset_settle_delay"`

	Chat ChatRules `yaml:"chat"`
}

type ChatRules struct {
	HistorySize    int           `yaml:"history_size"`
	MaxLength      int           `yaml:"max_length"`
	MinInterval    time.Duration `yaml:"min_interval"`
	ForbiddenTerms []string      `yaml:"forbidden_terms"`
}

// DefaultRules returns the rules used when no file is given
func DefaultRules() Rules {
	def := table.DefaultConfig()
	return Rules{
		LivenessCheckInterval: def.LivenessCheckInterval,
		ParticipantTimeout:    def.ParticipantTimeout,
		CueHoldTimeout:        def.CueHoldTimeout,
		ShotStartSkew:         def.ShotStartSkew,
		ShotWatchdog:          def.ShotWatchdog,
		ResetSettleDelay:      def.ResetSettleDelay,
		Chat: ChatRules{
			HistorySize:    def.Chat.HistorySize,
			MaxLength:      def.Chat.MaxLength,
			MinInterval:    def.Chat.MinInterval,
			ForbiddenTerms: def.Chat.ForbiddenTerms,
		},
	}
}

// LoadRules overlays the YAML file at path on the defaults. An empty path
// returns the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("invalid rules in %s: %w", path, err)
	}
	return rules, nil
}

// Validate rejects non-positive timings and limits
func (r Rules) Validate() error {
	var errs []error
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"liveness_check_interval", r.LivenessCheckInterval},
		{"participant_timeout", r.ParticipantTimeout},
		{"cue_hold_timeout", r.CueHoldTimeout},
		{"shot_watchdog", r.ShotWatchdog},
		{"reset_settle_delay", r.ResetSettleDelay},
		{"chat.min_interval", r.Chat.MinInterval},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.value))
		}
	}
	if r.ShotStartSkew < 0 {
		errs = append(errs, fmt.Errorf("shot_start_skew must not be negative, got %s", r.ShotStartSkew))
	}
	if r.Chat.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("chat.history_size must be positive, got %d", r.Chat.HistorySize))
	}
	if r.Chat.MaxLength <= 0 {
		errs = append(errs, fmt.Errorf("chat.max_length must be positive, got %d", r.Chat.MaxLength))
	}
	return errors.Join(errs...)
}

// TableConfig converts the rules into the table's configuration
func (r Rules) TableConfig() table.Config {
	return table.Config{
		LivenessCheckInterval: r.LivenessCheckInterval,
		ParticipantTimeout:    r.ParticipantTimeout,
		CueHoldTimeout:        r.CueHoldTimeout,
		ShotStartSkew:         r.ShotStartSkew,
		ShotWatchdog:          r.ShotWatchdog,
		ResetSettleDelay:      r.ResetSettleDelay,
		Chat: chat.Config{
			HistorySize:    r.Chat.HistorySize,
			MaxLength:      r.Chat.MaxLength,
			MinInterval:    r.Chat.MinInterval,
			ForbiddenTerms: r.Chat.ForbiddenTerms,
		},
	}
}

package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/coachstream/coach"
)

func newConfigCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(g.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(newConfigView(cfg)); err != nil {
				return errors.Wrap(err, "encode config")
			}
			return enc.Close()
		},
	}
}

// configView renders durations as strings so the output can be fed back
// through --config.
type configView struct {
	URL              string    `yaml:"url"`
	Token            string    `yaml:"token,omitempty"`
	ConversationID   string    `yaml:"conversation_id,omitempty"`
	HandshakeTimeout string    `yaml:"handshake_timeout"`
	ReadTimeout      string    `yaml:"read_timeout"`
	WriteTimeout     string    `yaml:"write_timeout"`
	PingInterval     string    `yaml:"ping_interval"`
	ReadLimit        int64     `yaml:"read_limit,omitempty"`
	Retry            retryView `yaml:"retry"`
	SignalTypes      []string  `yaml:"signal_types,omitempty"`
	StrictTypes      bool      `yaml:"strict_types"`
}

type retryView struct {
	MaxRetries int      `yaml:"max_retries"`
	BaseDelay  string   `yaml:"base_delay"`
	Delays     []string `yaml:"delays,omitempty"`
}

func newConfigView(cfg coach.Config) configView {
	v := configView{
		URL:              cfg.URL,
		ConversationID:   cfg.ConversationID,
		HandshakeTimeout: cfg.HandshakeTimeout.String(),
		ReadTimeout:      cfg.ReadTimeout.String(),
		WriteTimeout:     cfg.WriteTimeout.String(),
		PingInterval:     cfg.PingInterval.String(),
		ReadLimit:        cfg.ReadLimit,
		Retry: retryView{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay.String(),
		},
		SignalTypes: cfg.SignalTypes,
		StrictTypes: cfg.StrictTypes,
	}
	if cfg.Token != "" {
		v.Token = "redacted"
	}
	for _, d := range cfg.Retry.Delays {
		v.Retry.Delays = append(v.Retry.Delays, d.String())
	}
	return v
}

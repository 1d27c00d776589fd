// Copyright 2024-2026 Aiku AI

package matrix

import (
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/appservice"
)

// Config locates the homeserver and the appservice registration file.
type Config struct {
	HomeserverURL    string `yaml:"homeserver_url"`
	Domain           string `yaml:"domain"`
	RegistrationPath string `yaml:"registration"`
}

// NewAppService builds the appservice used by both the client and the
// inbound transaction server.
func NewAppService(cfg Config, log zerolog.Logger) (*appservice.AppService, error) {
	reg, err := appservice.LoadRegistration(cfg.RegistrationPath)
	if err != nil {
		return nil, fmt.Errorf("loading registration %q: %w", cfg.RegistrationPath, err)
	}
	as := appservice.Create()
	as.Registration = reg
	as.HomeserverDomain = cfg.Domain
	as.Log = log.With().Str("component", "appservice").Logger()
	if err := as.SetHomeserverURL(cfg.HomeserverURL); err != nil {
		return nil, fmt.Errorf("invalid homeserver url %q: %w", cfg.HomeserverURL, err)
	}
	return as, nil
}

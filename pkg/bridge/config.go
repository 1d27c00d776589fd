// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"
	"regexp"

	"maunium.net/go/mautrix/id"
)

// Config holds the bridge-level configuration. It is loaded from YAML by
// the embedding application and post-processed before use.
type Config struct {
	// HomeserverDomain is the server name puppets and aliases live on.
	HomeserverDomain string `yaml:"homeserver_domain"`
	// BotLocalpart is the localpart of the bridge bot account.
	BotLocalpart string `yaml:"bot_localpart"`
	// PuppetPrefix is prepended to derived puppet usernames. It also
	// defines the bridge-controlled user namespace for anti-loop checks.
	PuppetPrefix string `yaml:"puppet_prefix"`
	// RoomAliasPrefix is prepended to derived room aliases.
	RoomAliasPrefix string `yaml:"room_alias_prefix"`

	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Presence     PresenceConfig     `yaml:"presence"`

	whitelist []*regexp.Regexp
	blacklist []*regexp.Regexp
}

// ProvisioningConfig restricts which Matrix senders may drive the bridge.
// Patterns are anchored regular expressions matched against full user ids.
type ProvisioningConfig struct {
	// Whitelist, when non-empty, is the only set of senders accepted.
	Whitelist []string `yaml:"whitelist"`
	// Blacklist always rejects matching senders.
	Blacklist []string `yaml:"blacklist"`
}

// PresenceConfig carries the presence-relay flags. The core does not act on
// them; adapters read them through the config.
type PresenceConfig struct {
	Remote bool `yaml:"remote"`
	Local  bool `yaml:"local"`
}

// PostProcess compiles the provisioning patterns. It must be called once
// after unmarshalling and before the config is handed to the worker.
func (c *Config) PostProcess() error {
	var err error
	c.whitelist, err = compilePatterns(c.Provisioning.Whitelist)
	if err != nil {
		return fmt.Errorf("provisioning whitelist: %w", err)
	}
	c.blacklist, err = compilePatterns(c.Provisioning.Blacklist)
	if err != nil {
		return fmt.Errorf("provisioning blacklist: %w", err)
	}
	return nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")$")
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// BotUserID returns the Matrix id of the bridge bot.
func (c *Config) BotUserID() id.UserID {
	return id.NewUserID(c.BotLocalpart, c.HomeserverDomain)
}

// SenderAllowed applies the deny list and, when non-empty, the allow list
// to an inbound event sender.
func (c *Config) SenderAllowed(sender id.UserID) bool {
	s := sender.String()
	for _, re := range c.blacklist {
		if re.MatchString(s) {
			return false
		}
	}
	if len(c.whitelist) == 0 {
		return true
	}
	for _, re := range c.whitelist {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// IsBridgeControlled reports whether a Matrix user is managed by this
// bridge: the bot itself or anything in the puppet namespace on the
// bridge's domain. Used for anti-loop filtering of inbound events.
func (c *Config) IsBridgeControlled(user id.UserID) bool {
	if user == c.BotUserID() {
		return true
	}
	localpart, domain, err := user.Parse()
	if err != nil {
		return false
	}
	return domain == c.HomeserverDomain && c.PuppetPrefix != "" &&
		len(localpart) >= len(c.PuppetPrefix) && localpart[:len(c.PuppetPrefix)] == c.PuppetPrefix
}

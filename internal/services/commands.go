package services

import (
	"fmt"
	"strings"
)

// listQuery makes subscribe report the current set instead of adding a name.
const listQuery = "list"

// Commands implements the chat subscription commands independently of the
// chat platform. Each method returns the reply text.
type Commands struct {
	registry *Registry
}

func NewCommands(registry *Registry) *Commands {
	return &Commands{registry: registry}
}

func (c *Commands) Subscribe(channelID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Usage: /subscribe <name>, /subscribe * or /subscribe list"
	}
	if name == listQuery {
		return "Active subscriptions: " + strings.Join(c.registry.Names(channelID), ", ")
	}
	if !c.registry.Subscribe(channelID, name) {
		return fmt.Sprintf("Already subscribed to %s", name)
	}
	return fmt.Sprintf("Subscribed to %s", name)
}

func (c *Commands) Unsubscribe(channelID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Usage: /unsubscribe <name>"
	}
	if !c.registry.Unsubscribe(channelID, name) {
		return fmt.Sprintf("Not subscribing to %s already", name)
	}
	return fmt.Sprintf("Unsubscribed to %s", name)
}

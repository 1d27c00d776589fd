// Copyright 2024-2026 Aiku AI

// Package compat carries Matrix event types that are not (yet) part of the
// stable spec but are needed for client interoperability.
package compat

import (
	"reflect"
	"slices"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// StateServiceMembers is the MSC4171 service members state event. Clients
// use it to exclude bots and bridged service accounts from room naming and
// direct-chat heuristics.
var StateServiceMembers = event.Type{Type: "io.element.functional_members", Class: event.StateEventType}

// ServiceMembersEventContent lists the room's service members.
type ServiceMembersEventContent struct {
	ServiceMembers []id.UserID `json:"service_members"`
}

// Add returns whether the user was absent and appends it if so.
func (c *ServiceMembersEventContent) Add(user id.UserID) bool {
	if slices.Contains(c.ServiceMembers, user) {
		return false
	}
	c.ServiceMembers = append(c.ServiceMembers, user)
	return true
}

func init() {
	event.TypeMap[StateServiceMembers] = reflect.TypeOf(ServiceMembersEventContent{})
}

// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package resync carries credential changes to the subsystem that rebuilds
// the gitolite configuration.
//
// The credential service never talks to that subsystem directly. Every
// committed create or destroy writes an Event into the transactional
// outbox; a Dispatcher later reads pending events and hands them to a
// Notifier. A failed delivery is logged and retried on the next pass, it
// never undoes the committed credential.
package resync

import (
	"encoding/json"
	"fmt"
)

// Command names the kind of resync requested.
type Command string

const (
	// CommandAddSSHKey asks for the owner's keys to be (re)published.
	CommandAddSSHKey Command = "add_ssh_key"
	// CommandDeleteSSHKey asks for one key to be removed.
	CommandDeleteSSHKey Command = "delete_ssh_key"
)

// DeletedKey is the snapshot of a credential taken before it is destroyed.
type DeletedKey struct {
	Title    string `json:"title"`
	Key      string `json:"key"`
	Owner    string `json:"owner"`
	Location string `json:"location"`
}

// Event is a single resync request.
type Event struct {
	Command Command     `json:"command"`
	OwnerID int64       `json:"owner_id,omitempty"`
	Key     *DeletedKey `json:"object,omitempty"`
}

// AddCredential returns the event emitted after a credential was created.
func AddCredential(ownerID int64) Event {
	return Event{Command: CommandAddSSHKey, OwnerID: ownerID}
}

// DeleteCredential returns the event emitted after a credential was
// destroyed. identifier doubles as the key title inside gitolite.
func DeleteCredential(identifier, key, owner, location string) Event {
	return Event{
		Command: CommandDeleteSSHKey,
		Key:     &DeletedKey{Title: identifier, Key: key, Owner: owner, Location: location},
	}
}

// IsZero reports whether e is the empty event.
func (e Event) IsZero() bool {
	return e.Command == ""
}

func (e Event) String() string {
	switch e.Command {
	case CommandAddSSHKey:
		return fmt.Sprintf("%s(owner=%d)", e.Command, e.OwnerID)
	case CommandDeleteSSHKey:
		if e.Key != nil {
			return fmt.Sprintf("%s(%s)", e.Command, e.Key.Title)
		}
	}
	return string(e.Command)
}

// Marshal encodes e for storage in the outbox.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an event previously produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode resync event: %w", err)
	}
	switch e.Command {
	case CommandAddSSHKey, CommandDeleteSSHKey:
		return e, nil
	default:
		return Event{}, fmt.Errorf("decode resync event: unknown command %q", e.Command)
	}
}

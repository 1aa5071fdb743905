// Package realtime carries change notifications between writers and the
// live view streams. Events only say that something changed; subscribers
// reload the state they care about.
package realtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	KindOrganizationCreated = "organization.created"
	KindRoleCreated         = "role.created"
	KindRoleUpdated         = "role.updated"
	KindMemberAdded         = "member.added"
	KindFolderAdded         = "folder.added"
	KindDatabaseAdded       = "database.added"
	KindRequestSubmitted    = "request.submitted"
	KindRequestApproved     = "request.approved"
)

const DefaultSubscriberBuffer = 16

var (
	ErrBrokerClosed   = errors.New("broker_closed")
	ErrInvalidChannel = errors.New("invalid_channel")
)

type Event struct {
	ID      string    `json:"id"`
	Channel string    `json:"channel"`
	Kind    string    `json:"kind"`
	EID     string    `json:"eid"`
	At      time.Time `json:"at"`
}

// NewEvent stamps an event with a sortable id.
func NewEvent(channel, kind, eid string) Event {
	id := ulid.Make()
	return Event{
		ID:      id.String(),
		Channel: channel,
		Kind:    kind,
		EID:     eid,
		At:      ulid.Time(id.Time()).UTC(),
	}
}

// OrgChannel carries changes to an organization and everything it owns.
func OrgChannel(eid string) string { return "org:" + strings.TrimSpace(eid) }

// RequestsChannel carries join request changes targeting eid.
func RequestsChannel(eid string) string { return "requests:" + strings.TrimSpace(eid) }

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Subscription interface {
	Events() <-chan Event
	Close()
}

type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Notify publishes a change and only reports failures; writes have already
// committed by the time it runs.
func Notify(ctx context.Context, pub Publisher, channel, kind, eid string) error {
	if pub == nil {
		return nil
	}
	return pub.Publish(ctx, NewEvent(channel, kind, eid))
}

package ws

import "cvcounter/internal/eventbus"

// OutboundMessage is the JSON envelope sent to a browser client, mirroring
// one eventbus.Event for a location.
type OutboundMessage struct {
	Type     string                      `json:"type"` // "count", "notification", or "status"
	Location string                      `json:"location"`
	Count    *eventbus.CountEvent        `json:"count,omitempty"`
	Notify   *eventbus.NotificationEvent `json:"notification,omitempty"`
	Status   *eventbus.StatusEvent       `json:"status,omitempty"`
}

// FromEvent converts a bus event into its wire representation.
func FromEvent(ev eventbus.Event) OutboundMessage {
	return OutboundMessage{
		Type:     string(ev.Kind),
		Location: ev.Location,
		Count:    ev.Count,
		Notify:   ev.Notify,
		Status:   ev.Status,
	}
}

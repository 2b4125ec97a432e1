package types

import "encoding/json"

type omit *struct{}

// WireEvent wraps an Event for the websocket: the event name moves into the
// envelope, the target filter is never sent to clients.
type WireEvent struct {
	*Event
	Name         omit `json:"name,omitempty"`
	TargetFilter omit `json:"target_filter,omitempty"`
}

func (e WireEvent) MarshalJSON() ([]byte, error) {
	type localWireEvent WireEvent
	data, err := json.Marshal(localWireEvent(e))
	if err != nil {
		return nil, err
	}
	m := WebsocketMessage{
		Event: e.Event.Name,
		Data:  data,
	}
	return json.Marshal(m)
}

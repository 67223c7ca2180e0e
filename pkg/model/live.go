package model

// LiveEvent is the change class a live subscription listens for.
type LiveEvent string

const (
	EventInsert LiveEvent = "insert"
	EventUpdate LiveEvent = "update"
	EventDelete LiveEvent = "delete"
)

// Live subscription delivery modes.
const (
	MethodOn   = "on"   // deliver until unsubscribed
	MethodOnce = "once" // deliver one event, then unsubscribe
)

// CloseAuthFailure is the websocket close code for rejected credentials.
// Clients must not reconnect after receiving it.
const CloseAuthFailure = 4401

// SubscribeMessage is the client -> server live subscription request.
type SubscribeMessage struct {
	Collection string         `json:"collection"`
	Event      LiveEvent      `json:"event"`
	Filter     map[string]any `json:"filter,omitempty"`
	Pipeline   []any          `json:"pipeline,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Skip       int            `json:"skip,omitempty"`
	Method     string         `json:"method,omitempty"`
}

// PushMessage is the server -> client live delivery payload.
type PushMessage struct {
	Doc             Document   `json:"doc,omitempty"`
	Docs            []Document `json:"docs,omitempty"`
	UpdatedFields   Document   `json:"updatedFields,omitempty"`
	RemovedFields   []string   `json:"removedFields,omitempty"`
	TruncatedArrays []any      `json:"truncatedArrays,omitempty"`
}

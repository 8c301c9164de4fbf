package web

// Request is a chat message sent by the client.
type Request struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

// Reply is sent for every state change of a turn. The final reply of a
// turn has state "done" or "failed".
type Reply struct {
	Session string `json:"session"`
	State   string `json:"state"`
	Source  string `json:"source,omitempty"`
	Format  string `json:"format,omitempty"`
	// Artifact is base64 in JSON.
	Artifact []byte `json:"artifact,omitempty"`
	// Error is the assistant turn recorded for a failed turn.
	Error string `json:"error,omitempty"`
}

// CategoryInfo describes one diagram category.
type CategoryInfo struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

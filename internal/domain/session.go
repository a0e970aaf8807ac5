package domain

// SessionRequest is the body of a session issuance call.
type SessionRequest struct {
	AgentToken string `json:"agent_token"`
	UserID     string `json:"user_id,omitempty"`
}

// Session holds the transient credentials returned by the session endpoint.
// Conventionally ID looks like "ses_<hex>" and URL is a ws:// or wss:// URL.
type Session struct {
	ID              string `json:"session_id"`
	ConnectionToken string `json:"connection_token"`
	ConnectionURL   string `json:"connection_url"`
}

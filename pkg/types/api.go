package types

import "time"

// CreateSessionRequest is the payload for POST /api/chat/sessions.
type CreateSessionRequest struct {
	// Owning user identifier. Required.
	// example: u1
	UserID string `json:"user_id" example:"u1"`
}

// SessionResponse describes one chat session, including its full history.
type SessionResponse struct {
	// Session identifier.
	// example: 7b4363a5-8f61-4d33-9c3a-2f1f3a30b0c1
	SessionID string `json:"session_id" example:"7b4363a5-8f61-4d33-9c3a-2f1f3a30b0c1"`
	// Owning user identifier.
	// example: u1
	UserID string `json:"user_id" example:"u1"`
	// When the session was created.
	CreatedAt time.Time `json:"created_at"`
	// Timestamp of the last completed exchange; null until the first one.
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	// Currently loaded model config, if any.
	ModelConfig *ModelConfig `json:"model_config,omitempty"`
	// Ordered message history, oldest first.
	Messages []ChatMessage `json:"messages"`
}

// SessionSummary is one row of a user's session listing.
type SessionSummary struct {
	// Session identifier.
	// example: 7b4363a5-8f61-4d33-9c3a-2f1f3a30b0c1
	SessionID string `json:"session_id" example:"7b4363a5-8f61-4d33-9c3a-2f1f3a30b0c1"`
	// When the session was created.
	CreatedAt time.Time `json:"created_at"`
	// Timestamp of the last completed exchange; null until the first one.
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// SessionListResponse wraps GET /api/chat/sessions.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// MessageRequest is the payload for sending a message in a session.
type MessageRequest struct {
	// Message text. Required.
	// example: Write a haiku about the ocean.
	Content string `json:"content" example:"Write a haiku about the ocean."`
}

// MessageResponse is returned by the synchronous send-message endpoint.
type MessageResponse struct {
	// The generated assistant message.
	Message ChatMessage `json:"message"`
	// Session the exchange belongs to.
	// example: 7b4363a5-8f61-4d33-9c3a-2f1f3a30b0c1
	SessionID string `json:"session_id" example:"7b4363a5-8f61-4d33-9c3a-2f1f3a30b0c1"`
}

// StreamFragment is one NDJSON line of a streamed response.
type StreamFragment struct {
	// Incremental piece of generated text.
	// example: Hello
	Fragment string `json:"fragment" example:"Hello"`
}

// StreamEnd is the NDJSON sentinel line terminating a stream.
type StreamEnd struct {
	// Always true on the final line.
	// example: true
	Done bool `json:"done" example:"true"`
	// Full accumulated response text.
	Content string `json:"content"`
	// Error message when the stream ended abnormally.
	Error string `json:"error,omitempty"`
}

// ModelFile is one discoverable weights file on disk.
type ModelFile struct {
	// File name, usable as a config name.
	// example: tinyllama-q4.gguf
	Name string `json:"name" example:"tinyllama-q4.gguf"`
	// Absolute path to the file.
	// example: /home/user/models/tinyllama-q4.gguf
	Path string `json:"path" example:"/home/user/models/tinyllama-q4.gguf"`
	// File size in bytes.
	// example: 668788096
	SizeBytes int64 `json:"size_bytes" example:"668788096"`
}

// ModelFileListResponse wraps GET /api/llm/available.
type ModelFileListResponse struct {
	Files []ModelFile `json:"files"`
}

// UserResponse is returned by the create-or-get user endpoint.
type UserResponse struct {
	// Opaque user identifier.
	// example: u1
	ID string `json:"id" example:"u1"`
	// When the user record was created.
	CreatedAt time.Time `json:"created_at"`
}

// AckResponse is a minimal success acknowledgement.
type AckResponse struct {
	// Human-readable confirmation.
	// example: session deleted
	Message string `json:"message" example:"session deleted"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Engine lifecycle state (unloaded, loading, ready).
	// example: ready
	State string `json:"state" example:"ready"`
	// Name of the loaded config, empty when unloaded.
	// example: tinyllama-q4
	Model string `json:"model,omitempty" example:"tinyllama-q4"`
	// Total number of engine loads since startup.
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
	// Total number of engine unloads since startup.
	// example: 2
	UnloadsTotal uint64 `json:"unloads_total" example:"2"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

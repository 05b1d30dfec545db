// Package domain defines the contracts shared by the extraction, indexing and
// retrieval stages: storage notifications, index records, conversation turns,
// the request/response bodies of the question endpoint, and the model ports.
package domain

import "time"

// Key namespaces. Every stage routes on these prefixes.
const (
	RawPrefix     = "raw/"
	TrustedPrefix = "trusted/"
)

// EventObjectCreated is the only event type the pipeline reacts to.
const EventObjectCreated = "object-created"

// Notification announces that an object was written to a bucket.
type Notification struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	EventType string `json:"event_type"`
	// Text optionally carries the object body for small text blobs so the
	// consumer does not have to read it back from storage.
	Text string `json:"text,omitempty"`
}

// IndexRecord is one document in the vector collection. Text is always the
// full extracted text, even when only a prefix was embedded.
type IndexRecord struct {
	Text        string    `json:"text"`
	Vector      []float32 `json:"vector_field"`
	SourceFile  string    `json:"source_file"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// Hit is a record returned by a similarity query together with its score.
type Hit struct {
	Record IndexRecord
	Score  float32
}

// Turn is one question/answer exchange of a conversation.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// SourceRef cites a retrieved record in an answer.
type SourceRef struct {
	Source         string `json:"source"`
	ContentPreview string `json:"content_preview"`
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// AskResponse is the success body of POST /api/ask.
type AskResponse struct {
	Answer    string      `json:"answer"`
	Sources   []SourceRef `json:"sources"`
	SessionID string      `json:"session_id"`
}

// ErrorResponse is the body returned with 4xx/5xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

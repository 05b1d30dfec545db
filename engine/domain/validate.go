package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// s3Envelope is the S3-style event shape: {"Records":[{"s3":{...}}]}.
type s3Envelope struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// DecodeNotification parses a notification payload. Both the native shape and
// an S3-style Records envelope are accepted; keys from the envelope are
// URL-unescaped with '+' meaning space. The result is validated.
func DecodeNotification(data []byte) (Notification, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	var n Notification
	if _, ok := probe["Records"]; ok {
		var env s3Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
		}
		if len(env.Records) == 0 {
			return Notification{}, fmt.Errorf("%w: empty Records", ErrMalformedNotification)
		}
		rec := env.Records[0]
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return Notification{}, fmt.Errorf("%w: key %q: %v", ErrMalformedNotification, rec.S3.Object.Key, err)
		}
		n = Notification{Bucket: rec.S3.Bucket.Name, Key: key, EventType: EventObjectCreated}
		if rec.EventName != "" && !strings.HasPrefix(rec.EventName, "ObjectCreated") {
			n.EventType = rec.EventName
		}
	} else if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	if n.EventType == "" {
		n.EventType = EventObjectCreated
	}
	if err := n.Validate(); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// Validate rejects notifications missing a bucket or key, or carrying an event
// type other than object-created.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.Bucket) == "" {
		return NewValidationError("bucket", n.Bucket, ErrMalformedNotification)
	}
	if strings.TrimSpace(n.Key) == "" {
		return NewValidationError("key", n.Key, ErrMalformedNotification)
	}
	if n.EventType != EventObjectCreated {
		return NewValidationError("event_type", n.EventType, ErrMalformedNotification)
	}
	return nil
}

// ValidateQuestion rejects an empty or whitespace-only question.
func ValidateQuestion(q string) error {
	if strings.TrimSpace(q) == "" {
		return NewValidationError("question", q, ErrEmptyQuestion)
	}
	return nil
}

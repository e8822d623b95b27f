package outbox

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	appoutbox "slotkeeper/internal/app/outbox"
)

const (
	ContentType = "application/cloudevents+json"
	typeSuffix  = ".v1"
)

var ErrMalformedEnvelope = errors.New("outbox: malformed event envelope")

// Envelope is the CloudEvents structured form events travel in.
type Envelope struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	TraceParent     string          `json:"traceparent,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// Encode wraps rec into an envelope and returns it with transport headers.
func Encode(rec appoutbox.EventRecord, source string) ([]byte, map[string]string, error) {
	if !json.Valid(rec.Payload) {
		return nil, nil, ErrMalformedEnvelope
	}
	env := Envelope{
		SpecVersion:     "1.0",
		ID:              rec.ID,
		Type:            rec.Name + typeSuffix,
		Source:          source,
		Subject:         rec.Aggregate,
		Time:            rec.OccurredAt,
		DataContentType: "application/json",
		TraceParent:     rec.Headers["traceparent"],
		Data:            rec.Payload,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{"content-type": ContentType}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// Decode turns an envelope back into the record that was published.
func Decode(payload []byte, headers map[string]string) (appoutbox.EventRecord, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return appoutbox.EventRecord{}, errors.Join(ErrMalformedEnvelope, err)
	}
	if env.ID == "" || !strings.HasSuffix(env.Type, typeSuffix) {
		return appoutbox.EventRecord{}, ErrMalformedEnvelope
	}
	rec := appoutbox.EventRecord{
		ID:         env.ID,
		Name:       strings.TrimSuffix(env.Type, typeSuffix),
		Payload:    env.Data,
		OccurredAt: env.Time,
		Aggregate:  env.Subject,
		Headers:    map[string]string{},
	}
	for k, v := range headers {
		if k == "content-type" {
			continue
		}
		rec.Headers[k] = v
	}
	return rec, nil
}

// TopicFor maps "waitlist.offered" to "<prefix>waitlist.events.v1".
func TopicFor(prefix, name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return prefix + base + ".events" + typeSuffix
}

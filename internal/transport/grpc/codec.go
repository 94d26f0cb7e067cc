package grpc

import (
	"encoding/json"
	"time"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// CodecName is the content-subtype both services are served with. Clients
// select it with grpc.CallContentSubtype(CodecName).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Timestamp carries a protobuf well-known timestamp as an RFC 3339 string.
type Timestamp struct {
	ts *timestamppb.Timestamp
}

// NewTimestamp returns nil for the zero time.
func NewTimestamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	return &Timestamp{ts: timestamppb.New(t)}
}

// AsTime returns the zero time for a nil or empty timestamp.
func (t *Timestamp) AsTime() time.Time {
	if t == nil || t.ts == nil {
		return time.Time{}
	}
	return t.ts.AsTime()
}

func (t *Timestamp) MarshalJSON() ([]byte, error) {
	if t == nil || t.ts == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(t.ts)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	ts := &timestamppb.Timestamp{}
	if err := protojson.Unmarshal(data, ts); err != nil {
		return err
	}
	t.ts = ts
	return nil
}

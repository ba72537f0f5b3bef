package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// MediaKind is the media carried by a conversation row.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaImage
	MediaSticker
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaSticker:
		return "sticker"
	case MediaVideo:
		return "video"
	default:
		return "none"
	}
}

// ParseMediaKind is the inverse of MediaKind.String.
func ParseMediaKind(s string) (MediaKind, error) {
	switch s {
	case "none", "":
		return MediaNone, nil
	case "image":
		return MediaImage, nil
	case "sticker":
		return MediaSticker, nil
	case "video":
		return MediaVideo, nil
	}
	return MediaNone, fmt.Errorf("unknown media kind %q", s)
}

// Reply describes the quoted message a row replies to.
type Reply struct {
	Sender     string
	QuotedText string
	IsMedia    bool
}

// MessageRecord is the structured form of one conversation row. Empty strings
// mean the value was absent on the row.
type MessageRecord struct {
	Reply  *Reply
	Header string
	Text   string
	Media  MediaKind
}

// FieldCount is the arity of the positional export format.
const FieldCount = 8

// Fields returns the positional export form:
// [reply_sender, reply_text, reply_is_media, header, body_text, is_image, is_sticker, is_video].
// Absent strings are nil.
func (r MessageRecord) Fields() [FieldCount]interface{} {
	var out [FieldCount]interface{}
	if r.Reply != nil {
		out[0] = r.Reply.Sender
		out[1] = nullable(r.Reply.QuotedText)
		out[2] = r.Reply.IsMedia
	} else {
		out[2] = false
	}
	out[3] = nullable(r.Header)
	out[4] = nullable(r.Text)
	out[5] = r.Media == MediaImage
	out[6] = r.Media == MediaSticker
	out[7] = r.Media == MediaVideo
	return out
}

// MarshalJSON encodes the record as its positional array.
func (r MessageRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ContactStatus is the outcome of harvesting one contact.
type ContactStatus string

const (
	ContactDone   ContactStatus = "done"
	ContactFailed ContactStatus = "failed"
)

// ContactResult is everything collected for one contact in one run.
type ContactResult struct {
	RunID      string
	Name       string
	Position   int
	Records    []MessageRecord
	// RowErrors counts rows that were only partially classified.
	RowErrors  int
	Status     ContactStatus
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether harvesting this contact was aborted.
func (c ContactResult) Failed() bool {
	return c.Status == ContactFailed
}

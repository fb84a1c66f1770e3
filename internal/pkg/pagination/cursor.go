package pagination

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
)

// Shape names the composite key a cursor encodes. Every listing is ordered
// descending by its shape's key, and the key is a strict total order.
type Shape int

const (
	// ShapeSpan orders by (startedAt, spanId, traceId)
	ShapeSpan Shape = iota
	// ShapeTrace orders by (traceId, spanId)
	ShapeTrace
	// ShapeResult orders by (createdAt, resultId) with a numeric result id
	ShapeResult
	// ShapeConversation orders by (startedAt, documentLogUuid)
	ShapeConversation
)

func (s Shape) String() string {
	switch s {
	case ShapeSpan:
		return "span"
	case ShapeTrace:
		return "trace"
	case ShapeResult:
		return "result"
	case ShapeConversation:
		return "conversation"
	default:
		return "unknown"
	}
}

// Cursor is an exclusive position in a descending keyset listing: a page
// requested with cursor C only contains rows whose key is strictly less than C.
type Cursor struct {
	Timestamp time.Time `json:"ts"`
	Value     string    `json:"v,omitempty"`
	ID        string    `json:"id"`
	TraceID   string    `json:"tid,omitempty"`
}

// SpanCursor positions a time-ordered span listing.
func SpanCursor(startedAt time.Time, spanID, traceID string) Cursor {
	return Cursor{Timestamp: startedAt.UTC(), ID: spanID, TraceID: traceID}
}

// TraceCursor positions an evaluation-ranked span listing.
func TraceCursor(traceID, spanID string) Cursor {
	return Cursor{Value: traceID, ID: spanID}
}

// ResultCursor positions a ranked evaluation-result candidate listing.
func ResultCursor(createdAt time.Time, resultID int64) Cursor {
	return Cursor{Timestamp: createdAt.UTC(), ID: strconv.FormatInt(resultID, 10)}
}

// ConversationCursor positions a conversation listing.
func ConversationCursor(lastStartedAt time.Time, documentLogUUID string) Cursor {
	return Cursor{Timestamp: lastStartedAt.UTC(), ID: documentLogUUID}
}

// Encode encodes the cursor to an opaque string
func (c Cursor) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// ResultID returns the numeric result id of a ShapeResult cursor.
func (c Cursor) ResultID() (int64, error) {
	id, err := strconv.ParseInt(c.ID, 10, 64)
	if err != nil {
		return 0, apperrors.Validation("invalid cursor: result id must be numeric")
	}
	return id, nil
}

// Validate checks the cursor carries the fields its shape requires.
func (c Cursor) Validate(shape Shape) error {
	if c.ID == "" {
		return apperrors.Validation("invalid cursor: missing id")
	}

	switch shape {
	case ShapeSpan:
		if c.Timestamp.IsZero() || c.TraceID == "" {
			return apperrors.Validation("invalid cursor: span cursor needs a timestamp and trace id")
		}
	case ShapeTrace:
		if c.Value == "" {
			return apperrors.Validation("invalid cursor: trace cursor needs a trace id")
		}
	case ShapeResult:
		if c.Timestamp.IsZero() {
			return apperrors.Validation("invalid cursor: result cursor needs a timestamp")
		}
		if _, err := c.ResultID(); err != nil {
			return err
		}
	case ShapeConversation:
		if c.Timestamp.IsZero() {
			return apperrors.Validation("invalid cursor: conversation cursor needs a timestamp")
		}
		if _, err := uuid.Parse(c.ID); err != nil {
			return apperrors.Validation("invalid cursor: conversation id must be a uuid")
		}
	default:
		return apperrors.Validation("invalid cursor shape")
	}

	return nil
}

// DecodeCursor decodes a cursor string. An empty string decodes to nil.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, apperrors.Validation("invalid cursor encoding").WithError(err)
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, apperrors.Validation("invalid cursor format").WithError(err)
	}

	return &cursor, nil
}

// DecodeShape decodes and validates a cursor in one step.
func DecodeShape(s string, shape Shape) (*Cursor, error) {
	cursor, err := DecodeCursor(s)
	if err != nil || cursor == nil {
		return cursor, err
	}
	if err := cursor.Validate(shape); err != nil {
		return nil, err
	}
	return cursor, nil
}

// Compare orders two keys of the same shape: negative when a sorts before b
// in ascending order. Listings walk this order in reverse.
func Compare(shape Shape, a, b Cursor) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := strings.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	if shape == ShapeResult {
		ai, _ := strconv.ParseInt(a.ID, 10, 64)
		bi, _ := strconv.ParseInt(b.ID, 10, 64)
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	if c := strings.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return strings.Compare(a.TraceID, b.TraceID)
}

// Before reports whether key is strictly below the cursor, i.e. whether a row
// with that key belongs to the continuation after cursor. A nil cursor admits
// every key.
func Before(shape Shape, key Cursor, cursor *Cursor) bool {
	if cursor == nil {
		return true
	}
	return Compare(shape, key, *cursor) < 0
}

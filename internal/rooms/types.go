package rooms

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Role is who wrote a message. Unrecognized backend roles map to RoleOther.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleOther  Role = "other"
)

func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleSystem:
		return RoleSystem
	case RoleUser:
		return RoleUser
	default:
		return RoleOther
	}
}

type Room struct {
	ID    string
	Title string
}

type Message struct {
	ID        string
	Role      Role
	Text      string
	CreatedAt time.Time
	// Pending marks an optimistic entry not yet confirmed by a reload.
	Pending bool
	// Sent marks a pending entry the backend accepted.
	Sent bool
}

// Phase is a room log's load state.
type Phase int

const (
	Unloaded Phase = iota
	Loading
	Loaded
	Appending
)

func (p Phase) String() string {
	switch p {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Appending:
		return "appending"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Log is a point-in-time copy of one room's conversation.
type Log struct {
	RoomID   string
	Phase    Phase
	Messages []Message
	LastErr  string
	LoadedAt time.Time
}

// sortMessages orders by creation time, keeping backend order on ties.
func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

type wireRoom struct {
	ID    any    `json:"id"`
	Title string `json:"title"`
}

type wireMessage struct {
	ID        any    `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt any    `json:"created_at"`
}

func (w wireMessage) message() Message {
	return Message{
		ID:        idString(w.ID),
		Role:      ParseRole(w.Role),
		Text:      w.Text,
		CreatedAt: parseCreatedAt(w.CreatedAt),
	}
}

func idString(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
}

func parseCreatedAt(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		if v > 1e12 {
			return time.UnixMilli(int64(v)).UTC()
		}
		return time.Unix(int64(v), 0).UTC()
	case string:
		text := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, text); err == nil {
				return parsed
			}
		}
		if secs, err := strconv.ParseFloat(text, 64); err == nil {
			return parseCreatedAt(secs)
		}
	}
	return time.Time{}
}

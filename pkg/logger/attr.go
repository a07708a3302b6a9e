package logger

import (
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func id(key string, v uuid.UUID) slog.Attr {
	if v == uuid.Nil {
		return slog.Attr{}
	}
	return slog.String(key, v.String())
}

// TeamID records the team identifier under "team_id". Nil UUIDs are omitted.
func TeamID(v uuid.UUID) slog.Attr { return id("team_id", v) }

// UserID records the user identifier under "user_id". Nil UUIDs are omitted.
func UserID(v uuid.UUID) slog.Attr { return id("user_id", v) }

// BoardID records the board identifier under "board_id". Nil UUIDs are omitted.
func BoardID(v uuid.UUID) slog.Attr { return id("board_id", v) }

// ServiceID records the board service identifier under "service_id". Nil UUIDs are omitted.
func ServiceID(v uuid.UUID) slog.Attr { return id("service_id", v) }

// Resource records the limited resource type under "resource".
func Resource(name string) slog.Attr {
	return slog.String("resource", name)
}

// PlanID records the subscription plan under "plan_id".
func PlanID(planID string) slog.Attr {
	return slog.String("plan_id", planID)
}

// TimerID records the live timer key under "timer_id".
func TimerID(key string) slog.Attr {
	return slog.String("timer_id", key)
}

// EventType records a webhook or change event type under "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

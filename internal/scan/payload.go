package scan

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"attendsync/internal/submit"
)

// Payload is the JSON document carried by a scanned code.
type Payload struct {
	TeacherID string `json:"idDocente" validate:"required"`
	DeviceID  string `json:"idDispositivo"`
	Lat       string `json:"lat"`
	Lng       string `json:"lng"`
	Type      string `json:"tipo"`
	Date      string `json:"fecha" validate:"required"`
}

// Validated is a payload that passed every check, with parsed fields. It is
// the submission request the URL builder and the dedup key operate on.
type Validated = submit.Request

// Attendance types accepted in a payload, compared case-insensitively.
const (
	TypeCheckIn  = submit.TypeCheckIn
	TypeCheckOut = submit.TypeCheckOut
)

// dateLayouts are the timestamp formats a payload may carry. The canonical
// producer emits the first; the rest tolerate generator drift.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
}

var validate = validator.New()

// Parse validates raw scanned text against the device clock and the
// configured validity window (minutes). It is a pure function of its inputs:
// no side effects, no global state.
func Parse(raw string, now time.Time, windowMinutes int) (Validated, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Validated{}, newValidationError(CodeMalformedPayload, "payload is not valid JSON")
	}

	if err := validate.Struct(p); err != nil {
		var fields validator.ValidationErrors
		if errors, ok := err.(validator.ValidationErrors); ok {
			fields = errors
		}
		for _, fe := range fields {
			switch fe.Field() {
			case "TeacherID":
				return Validated{}, newValidationError(CodeInvalidTeacher, "payload carries no teacher id")
			case "Date":
				return Validated{}, newValidationError(CodeInvalidTimestamp, "payload carries no timestamp")
			}
		}
		return Validated{}, newValidationError(CodeMalformedPayload, "payload failed validation")
	}

	teacherID, err := strconv.Atoi(strings.TrimSpace(p.TeacherID))
	if err != nil || teacherID <= 0 {
		return Validated{}, newValidationError(CodeInvalidTeacher, "teacher id %q is not a positive integer", p.TeacherID)
	}

	ts, ok := parseDate(p.Date, now.Location())
	if !ok {
		return Validated{}, newValidationError(CodeInvalidTimestamp, "timestamp %q is not parseable", p.Date)
	}

	ny, nm, nd := now.Date()
	ty, tm, td := ts.Date()
	if ny != ty || nm != tm || nd != td {
		return Validated{}, newValidationError(CodeWrongDay, "payload belongs to another day")
	}

	window := time.Duration(windowMinutes) * time.Minute
	switch {
	case strings.EqualFold(p.Type, TypeCheckIn):
		diff := now.Sub(ts)
		if diff < 0 {
			diff = -diff
		}
		if diff > window {
			return Validated{}, newValidationError(CodeExpired, "check-in code expired (%.0f minutes old, window %d)", diff.Minutes(), windowMinutes)
		}
	case strings.EqualFold(p.Type, TypeCheckOut):
		// Check-outs carry no expiry.
	default:
		return Validated{}, newValidationError(CodeUnknownType, "type %q is neither %s nor %s", p.Type, TypeCheckIn, TypeCheckOut)
	}

	return Validated{
		TeacherID: teacherID,
		DeviceID:  p.DeviceID,
		Lat:       defaultCoord(p.Lat),
		Lng:       defaultCoord(p.Lng),
		Type:      normalizeType(p.Type),
		Timestamp: ts,
	}, nil
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func defaultCoord(s string) string {
	if strings.TrimSpace(s) == "" {
		return "0"
	}
	return s
}

func normalizeType(s string) string {
	if strings.EqualFold(s, TypeCheckOut) {
		return TypeCheckOut
	}
	return TypeCheckIn
}

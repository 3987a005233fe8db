package submit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Attendance directions a request can carry. Validation normalizes the
// payload's tipo field to one of these.
const (
	TypeCheckIn  = "Entrada"
	TypeCheckOut = "Salida"
)

// TimestampLayout is the wire format of the fecha parameter.
const TimestampLayout = "2006-01-02 15:04:05"

// Request is one validated attendance submission: the fields the canonical
// request string and the idempotency key are derived from.
type Request struct {
	TeacherID int
	DeviceID  string
	Lat       string
	Lng       string
	Type      string // TypeCheckIn or TypeCheckOut
	Timestamp time.Time
}

// BuildURL renders a request into the canonical request string.
//
// The parameter order is fixed (docente, fecha, tipo, device_id, latitud,
// longitud) and the string is built by hand rather than through url.Values,
// which would reorder keys: the rendered string is replayed verbatim by the
// reconciler, so identical logical events must render identically
// byte-for-byte.
func BuildURL(baseURL string, r Request) string {
	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString("?docente=")
	b.WriteString(fmt.Sprintf("%d", r.TeacherID))
	b.WriteString("&fecha=")
	b.WriteString(url.QueryEscape(r.Timestamp.Format(TimestampLayout)))
	b.WriteString("&tipo=")
	b.WriteString(url.QueryEscape(r.Type))
	b.WriteString("&device_id=")
	b.WriteString(url.QueryEscape(r.DeviceID))
	b.WriteString("&latitud=")
	b.WriteString(r.Lat)
	b.WriteString("&longitud=")
	b.WriteString(r.Lng)
	return b.String()
}

// DedupKey derives the structured idempotency key for a request: teacher id,
// normalized type, and calendar date. Two scans of the same teacher,
// direction, and day collapse to one queued event regardless of how the
// request string was rendered.
func DedupKey(r Request) string {
	return DedupKeyParts(r.TeacherID, r.Type, r.Timestamp)
}

// DedupKeyParts is DedupKey over raw components.
func DedupKeyParts(teacherID int, attendanceType string, ts time.Time) string {
	material := fmt.Sprintf("%d|%s|%s", teacherID, strings.ToLower(attendanceType), ts.Format("2006-01-02"))
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// Host extracts the host component of a rendered request string. Used by the
// connectivity gate to derive the institutional probe target.
func Host(rendered string) (string, bool) {
	u, err := url.Parse(rendered)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Hostname(), true
}

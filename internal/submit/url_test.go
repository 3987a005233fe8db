package submit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(ts time.Time) Request {
	return Request{
		TeacherID: 42,
		DeviceID:  "dev 1",
		Lat:       "-0.18",
		Lng:       "-78.47",
		Type:      TypeCheckIn,
		Timestamp: ts,
	}
}

func TestBuildURL_FixedParameterOrder(t *testing.T) {
	ts := time.Date(2026, 8, 30, 8, 15, 0, 0, time.Local)
	got := BuildURL("https://asistencia.example.edu/asistencia/registrar", request(ts))
	want := "https://asistencia.example.edu/asistencia/registrar" +
		"?docente=42&fecha=2026-08-30+08%3A15%3A00&tipo=Entrada&device_id=dev+1&latitud=-0.18&longitud=-78.47"
	assert.Equal(t, want, got)
}

func TestBuildURL_Deterministic(t *testing.T) {
	ts := time.Date(2026, 8, 30, 8, 15, 0, 0, time.Local)
	a := BuildURL("https://example.edu/registrar", request(ts))
	b := BuildURL("https://example.edu/registrar", request(ts))
	assert.Equal(t, a, b, "identical logical events must render byte-for-byte identically")
}

func TestDedupKey_IndependentOfRendering(t *testing.T) {
	morning := request(time.Date(2026, 8, 30, 8, 0, 0, 0, time.Local))
	later := request(time.Date(2026, 8, 30, 8, 7, 30, 0, time.Local))

	// Same teacher, same direction, same day: one identity even though the
	// rendered request strings differ.
	assert.NotEqual(t, BuildURL("https://x/r", morning), BuildURL("https://x/r", later))
	assert.Equal(t, DedupKey(morning), DedupKey(later))
}

func TestDedupKey_SeparatesTeacherTypeAndDay(t *testing.T) {
	base := request(time.Date(2026, 8, 30, 8, 0, 0, 0, time.Local))

	otherTeacher := base
	otherTeacher.TeacherID = 43
	assert.NotEqual(t, DedupKey(base), DedupKey(otherTeacher))

	checkout := base
	checkout.Type = TypeCheckOut
	assert.NotEqual(t, DedupKey(base), DedupKey(checkout))

	nextDay := base
	nextDay.Timestamp = base.Timestamp.AddDate(0, 0, 1)
	assert.NotEqual(t, DedupKey(base), DedupKey(nextDay))
}

func TestDedupKey_CaseInsensitiveType(t *testing.T) {
	ts := time.Date(2026, 8, 30, 8, 0, 0, 0, time.Local)
	assert.Equal(t, DedupKeyParts(42, "Entrada", ts), DedupKeyParts(42, "ENTRADA", ts))
}

func TestHost(t *testing.T) {
	h, ok := Host("https://asistencia.example.edu/asistencia/registrar?docente=42")
	require.True(t, ok)
	assert.Equal(t, "asistencia.example.edu", h)

	h, ok = Host("http://10.0.0.5:8443/registrar")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", h)

	_, ok = Host("not a url")
	assert.False(t, ok)
}

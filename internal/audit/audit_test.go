package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memWriter struct {
	events []EventLog
	err    error
}

func (m *memWriter) InsertEvent(_ context.Context, ev EventLog) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func TestTrailRecordsPayload(t *testing.T) {
	w := &memWriter{}
	trail := NewTrail(w, nil)
	doctorID := uuid.New()
	apptID := uuid.New()

	trail.Record(context.Background(), EventAppointmentBooked, doctorID, &apptID, map[string]any{"date": "2030-01-07"})

	require.Len(t, w.events, 1)
	ev := w.events[0]
	assert.Equal(t, EventAppointmentBooked, ev.EventType)
	assert.Equal(t, doctorID, *ev.DoctorID)
	assert.Equal(t, apptID, *ev.AppointmentID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "2030-01-07", payload["date"])
}

func TestTrailLogsWriterFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	trail := NewTrail(&memWriter{err: errors.New("db down")}, zap.New(core))

	trail.Record(context.Background(), EventAvailabilityUpdated, uuid.New(), nil, nil)

	assert.Equal(t, 1, logs.FilterMessage("insert audit event").Len())
}

func TestNilTrailIsNoop(t *testing.T) {
	var trail *Trail
	trail.Record(context.Background(), EventAvailabilityUpdated, uuid.New(), nil, nil)
}

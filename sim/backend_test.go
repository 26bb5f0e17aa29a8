package sim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// === MemoryBackend tests ===

func TestMemoryBackend_AssignsLapIdentity(t *testing.T) {
	backend := NewMemoryBackend(testCircuit(3), testDrivers(2))

	stored, err := backend.SubmitLapTime(context.Background(), "c1", LapTime{DriverID: "d1", LapNumber: 1, Seconds: 91.5})

	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.RecordedAt.IsZero())
	assert.Equal(t, 1, backend.LapCount())
}

func TestMemoryBackend_DerivesRecordFeedFromLaps(t *testing.T) {
	// avg 90: only sub-90 laps feed the record stream.
	backend := NewMemoryBackend(testCircuit(3), testDrivers(2))
	ctx := context.Background()

	poll, err := backend.FetchRecords("c1")
	require.NoError(t, err)
	assert.False(t, poll.RecordDetected)
	assert.Zero(t, poll.PollNumber)

	// A slow lap never becomes a record.
	_, err = backend.SubmitLapTime(ctx, "c1", LapTime{DriverID: "d1", LapNumber: 1, Seconds: 93.0})
	require.NoError(t, err)
	poll, _ = backend.FetchRecords("c1")
	assert.False(t, poll.RecordDetected)

	// First sub-average lap takes the track best.
	_, err = backend.SubmitLapTime(ctx, "c1", LapTime{DriverID: "d1", LapNumber: 2, Seconds: 89.2})
	require.NoError(t, err)
	poll, _ = backend.FetchRecords("c1")
	require.True(t, poll.RecordDetected)
	assert.Equal(t, int64(1), poll.PollNumber)
	assert.Equal(t, 89.2, poll.Record.LapTime)
	assert.Equal(t, "Driver One", poll.Record.DriverName)
	assert.Zero(t, poll.Record.PreviousBest, "no previous best to displace")

	// An improvement carries the displaced best and the delta.
	_, err = backend.SubmitLapTime(ctx, "c1", LapTime{DriverID: "d2", LapNumber: 1, Seconds: 88.7})
	require.NoError(t, err)
	poll, _ = backend.FetchRecords("c1")
	require.True(t, poll.RecordDetected)
	assert.Equal(t, int64(2), poll.PollNumber)
	assert.Equal(t, 89.2, poll.Record.PreviousBest)
	assert.Equal(t, 0.5, poll.Record.Delta)

	// A lap between the average and the best leaves the feed untouched.
	_, err = backend.SubmitLapTime(ctx, "c1", LapTime{DriverID: "d1", LapNumber: 3, Seconds: 89.0})
	require.NoError(t, err)
	poll, _ = backend.FetchRecords("c1")
	assert.Equal(t, int64(2), poll.PollNumber)
}

func TestMemoryBackend_PositionPollAdvancesOnChangeOnly(t *testing.T) {
	backend := NewMemoryBackend(testCircuit(3), testDrivers(2))
	ctx := context.Background()

	require.NoError(t, backend.SubmitPosition(ctx, "c1", "d1", 1))
	require.NoError(t, backend.SubmitPosition(ctx, "c1", "d1", 1)) // no change
	require.NoError(t, backend.SubmitPosition(ctx, "c1", "d1", 2))

	poll, err := backend.FetchPositions("c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), poll.PollNumber)
}

func TestMemoryBackend_IncidentFeed(t *testing.T) {
	backend := NewMemoryBackend(testCircuit(3), testDrivers(2))

	backend.AddIncident(Incident{ID: "i1", Type: IncidentDebris})
	poll, incs, err := backend.FetchIncidents("c1")

	require.NoError(t, err)
	assert.Equal(t, int64(1), poll)
	require.Len(t, incs, 1)
	assert.Equal(t, "i1", incs[0].ID)
}

// === HTTPBackend tests ===

func TestHTTPBackend_SubmitLapTime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/circuits/c1/laptimes", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var lap LapTime
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lap))
		lap.ID = "srv-1"
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(lap))
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, nil)
	stored, err := backend.SubmitLapTime(context.Background(), "c1", LapTime{DriverID: "d1", LapNumber: 4, Seconds: 90.123})

	require.NoError(t, err)
	assert.Equal(t, "srv-1", stored.ID)
	assert.Equal(t, "d1", stored.DriverID)
	assert.Equal(t, 4, stored.LapNumber)
}

func TestHTTPBackend_SubmitLapTime_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, nil)
	_, err := backend.SubmitLapTime(context.Background(), "c1", LapTime{DriverID: "d1", LapNumber: 1, Seconds: 91})

	assert.ErrorContains(t, err, "status 500")
}

func TestHTTPBackend_FetchRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/circuits/c1/records", r.URL.Path)
		resp := RecordPoll{
			PollNumber:     7,
			RecordDetected: true,
			Record:         &RecordNotice{ID: "r1", DriverID: "d2", LapTime: 88.4},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, nil)
	poll, err := backend.FetchRecords("c1")

	require.NoError(t, err)
	assert.Equal(t, int64(7), poll.PollNumber)
	require.NotNil(t, poll.Record)
	assert.Equal(t, 88.4, poll.Record.LapTime)
}

func TestHTTPBackend_SubmitPositionAndFetchIncidents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/circuits/c1/positions/d1":
			assert.Equal(t, http.MethodPut, r.Method)
			var body struct {
				Position int `json:"position"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, 3, body.Position)
			w.WriteHeader(http.StatusNoContent)
		case "/circuits/c1/incidents":
			require.NoError(t, json.NewEncoder(w).Encode(incidentPoll{
				PollNumber: 2,
				Incidents:  []Incident{{ID: "i1", Type: IncidentYellowFlag}},
			}))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, nil)

	require.NoError(t, backend.SubmitPosition(context.Background(), "c1", "d1", 3))

	poll, incs, err := backend.FetchIncidents("c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), poll)
	require.Len(t, incs, 1)
	assert.Equal(t, IncidentYellowFlag, incs[0].Type)
}

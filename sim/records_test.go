package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testAvg = 90.0

func TestRecordDetector_SlowerThanAverageIsNever(t *testing.T) {
	d := NewRecordDetector()

	assert.Equal(t, RecordNone, d.Classify("a", 1, testAvg+0.5, testAvg))
	assert.Equal(t, RecordNone, d.Classify("a", 2, testAvg, testAvg))
	assert.Zero(t, d.TrackBest())
}

func TestRecordDetector_FirstEligibleLapIsTrackRecord(t *testing.T) {
	// With no track best yet, the first lap under the average takes it.
	d := NewRecordDetector()

	assert.Equal(t, RecordTrack, d.Classify("a", 1, 89.0, testAvg))
	assert.Equal(t, 89.0, d.TrackBest())
	assert.Equal(t, 89.0, d.PersonalBest("a"))
}

func TestRecordDetector_NeverTrackForSlowerThanGlobalBest(t *testing.T) {
	d := NewRecordDetector()
	d.Classify("a", 1, 88.0, testAvg)

	// 88.5 beats the average but not the track best.
	class := d.Classify("b", 1, 88.5, testAvg)

	assert.NotEqual(t, RecordTrack, class)
	assert.Equal(t, 88.0, d.TrackBest())
}

func TestRecordDetector_FirstPersonalBestNotAnnounced(t *testing.T) {
	// Driver b's first eligible lap sets a personal best silently: there was
	// nothing to beat.
	d := NewRecordDetector()
	d.Classify("a", 1, 87.0, testAvg) // track record, out of b's way

	assert.Equal(t, RecordNone, d.Classify("b", 1, 89.0, testAvg))
	assert.Equal(t, 89.0, d.PersonalBest("b"))

	// The second improvement is a real personal record.
	assert.Equal(t, RecordPersonal, d.Classify("b", 2, 88.5, testAvg))
	assert.Equal(t, 88.5, d.PersonalBest("b"))
}

func TestRecordDetector_BestsOnlyMoveDown(t *testing.T) {
	d := NewRecordDetector()
	d.Classify("a", 1, 87.0, testAvg)
	d.Classify("a", 2, 89.0, testAvg) // slower, no update

	assert.Equal(t, 87.0, d.TrackBest())
	assert.Equal(t, 87.0, d.PersonalBest("a"))
}

func TestRecordDetector_DuplicateLapClassifiedOnce(t *testing.T) {
	// Redundant re-delivery of the same (driver, lap) pair must not
	// re-announce or mutate anything.
	d := NewRecordDetector()

	assert.Equal(t, RecordTrack, d.Classify("a", 1, 89.0, testAvg))
	assert.Equal(t, RecordNone, d.Classify("a", 1, 89.0, testAvg))
	assert.Equal(t, RecordNone, d.Classify("a", 1, 80.0, testAvg))
	assert.Equal(t, 89.0, d.TrackBest())
}

// === RecordWatcher tests ===

type scriptedRecordSource struct {
	polls []RecordPoll
	errs  []error
	calls int
}

func (s *scriptedRecordSource) FetchRecords(string) (RecordPoll, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return RecordPoll{}, s.errs[i]
	}
	if i >= len(s.polls) {
		return s.polls[len(s.polls)-1], nil
	}
	return s.polls[i], nil
}

func TestRecordWatcher_AnnouncesEachRecordOnce(t *testing.T) {
	rec1 := &RecordNotice{ID: "r1", DriverName: "a", LapTime: 89.0}
	rec2 := &RecordNotice{ID: "r2", DriverName: "b", LapTime: 88.0}
	source := &scriptedRecordSource{polls: []RecordPoll{
		{PollNumber: 1, RecordDetected: true, Record: rec1},
		{PollNumber: 1, RecordDetected: true, Record: rec1}, // stale poll number
		{PollNumber: 2, RecordDetected: true, Record: rec1}, // same record, new poll
		{PollNumber: 3, RecordDetected: false},
		{PollNumber: 4, RecordDetected: true, Record: rec2},
	}}

	var seen []string
	w := NewRecordWatcher(DefaultConfig().Polling, source, "c1", func(r RecordNotice) {
		seen = append(seen, r.ID)
	})

	for i := 0; i < len(source.polls); i++ {
		w.poller.tick()
	}

	assert.Equal(t, []string{"r1", "r2"}, seen)
}

func TestRecordWatcher_FetchFailureDoesNotAnnounce(t *testing.T) {
	source := &scriptedRecordSource{
		polls: []RecordPoll{{}, {PollNumber: 1, RecordDetected: true, Record: &RecordNotice{ID: "r1"}}},
		errs:  []error{errors.New("backend down"), nil},
	}

	var seen []string
	w := NewRecordWatcher(DefaultConfig().Polling, source, "c1", func(r RecordNotice) {
		seen = append(seen, r.ID)
	})

	w.poller.tick()
	w.poller.tick()

	assert.Equal(t, []string{"r1"}, seen)
}

package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewStore_DefaultCapacity(t *testing.T) {
	s := NewStore(0, time.Now())
	if len(s.history) != DefaultHistoryCapacity {
		t.Errorf("capacity = %d, want %d", len(s.history), DefaultHistoryCapacity)
	}
}

func TestStore_Summary(t *testing.T) {
	s := NewStore(10, time.Now().Add(-time.Minute))

	empty := s.Summary()
	if empty.Total != 0 || empty.SuccessRate != 0 || empty.AvgDuration != 0 {
		t.Errorf("empty summary = %+v", empty)
	}

	s.Record(StylizeRecord{Status: StatusSuccess, Duration: 2 * time.Second})
	s.Record(StylizeRecord{Status: StatusSuccess, Duration: 4 * time.Second})
	s.Record(StylizeRecord{Status: StatusError, ErrorKind: "busy", Duration: 0})
	s.Record(StylizeRecord{Status: StatusError, ErrorKind: "busy", Duration: 2 * time.Second})

	got := s.Summary()
	if got.Total != 4 || got.Success != 2 || got.Errors != 2 {
		t.Errorf("counts = %+v", got)
	}
	if got.SuccessRate != 50 {
		t.Errorf("SuccessRate = %v, want 50", got.SuccessRate)
	}
	if got.AvgDuration != 2*time.Second {
		t.Errorf("AvgDuration = %v, want 2s", got.AvgDuration)
	}
	if got.ByErrorKind["busy"] != 2 {
		t.Errorf("ByErrorKind = %v", got.ByErrorKind)
	}
	if got.Uptime < time.Minute {
		t.Errorf("Uptime = %v", got.Uptime)
	}

	// Summary returns a copy of the map.
	got.ByErrorKind["busy"] = 99
	if s.Summary().ByErrorKind["busy"] != 2 {
		t.Error("Summary leaked internal map")
	}
}

func TestStore_Recent(t *testing.T) {
	s := NewStore(3, time.Now())
	if got := s.Recent(5); len(got) != 0 {
		t.Errorf("Recent on empty store = %v", got)
	}

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.Record(StylizeRecord{RequestID: id, Status: StatusSuccess})
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, nil},
		{1, []string{"e"}},
		{2, []string{"d", "e"}},
		{10, []string{"c", "d", "e"}},
	}
	for _, tt := range tests {
		got := s.Recent(tt.limit)
		if len(got) != len(tt.want) {
			t.Errorf("Recent(%d) len = %d, want %d", tt.limit, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if got[i].RequestID != tt.want[i] {
				t.Errorf("Recent(%d)[%d] = %s, want %s", tt.limit, i, got[i].RequestID, tt.want[i])
			}
		}
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore(16, time.Now())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Record(StylizeRecord{Status: StatusSuccess})
			_ = s.Summary()
			_ = s.Recent(4)
		}()
	}
	wg.Wait()
	if got := s.Summary().Total; got != 50 {
		t.Errorf("Total = %d, want 50", got)
	}
}

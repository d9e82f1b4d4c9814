package engine

import (
	"reflect"
	"testing"
)

func TestMerge_NilFieldsNeverOverwrite(t *testing.T) {
	st := State{
		LastSentiment:    0.4,
		LastSuggestionTS: 900,
		RecentTopics:     []string{"travel"},
	}

	st.Merge(Delta{LastApologyTS: int64Ptr(950)})

	if st.LastSentiment != 0.4 || st.LastSuggestionTS != 900 {
		t.Fatalf("unset fields overwritten: %+v", st)
	}
	if !reflect.DeepEqual(st.RecentTopics, []string{"travel"}) {
		t.Fatalf("topics overwritten: %v", st.RecentTopics)
	}
	if st.LastApologyTS != 950 {
		t.Fatalf("apology ts = %d, want 950", st.LastApologyTS)
	}
}

func TestMerge_SetFieldsWin(t *testing.T) {
	st := State{RecentTopics: []string{"travel"}, RequestCount: 2}

	st.Merge(Delta{
		RecentTopics: []string{"music", "food"},
		RequestCount: intPtr(3),
	})

	if !reflect.DeepEqual(st.RecentTopics, []string{"music", "food"}) {
		t.Fatalf("topics = %v", st.RecentTopics)
	}
	if st.RequestCount != 3 {
		t.Fatalf("count = %d, want 3", st.RequestCount)
	}
}

func TestCombine_LaterNonNilWins(t *testing.T) {
	d := Delta{
		LastSentiment: float64Ptr(0.1),
		RecentTopics:  []string{"a"},
	}
	d.Combine(Delta{
		LastSentiment:    float64Ptr(0.2),
		LastSuggestionTS: int64Ptr(1000),
	})

	if *d.LastSentiment != 0.2 {
		t.Fatalf("sentiment = %v, want later value", *d.LastSentiment)
	}
	if !reflect.DeepEqual(d.RecentTopics, []string{"a"}) {
		t.Fatalf("topics = %v, want untouched", d.RecentTopics)
	}
	if d.LastSuggestionTS == nil || *d.LastSuggestionTS != 1000 {
		t.Fatalf("suggestion ts = %v", d.LastSuggestionTS)
	}
}

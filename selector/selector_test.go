package selector

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goforj/hybridcache/cachecore"
)

var allKinds = []cachecore.Kind{
	cachecore.KindMemory,
	cachecore.KindPersistent,
	cachecore.KindSession,
	cachecore.KindDatabase,
	cachecore.KindCookie,
}

func TestSelectLargeObjectGoesToDatabase(t *testing.T) {
	res := Select(Config{}, allKinds, Input{Key: "blob", Size: 10 * 1024 * 1024, DataType: cachecore.DataObject})
	if res.Backend != cachecore.KindDatabase {
		t.Fatalf("expected database, got %s (%v)", res.Backend, res.Scores)
	}
	if res.Confidence <= 0.5 {
		t.Fatalf("expected confidence > 0.5, got %v", res.Confidence)
	}
	if res.Scores[cachecore.KindCookie] != 0 {
		t.Fatalf("cookie must be zeroed for oversized payloads")
	}
	if !strings.Contains(res.Reason, "huge") || !strings.Contains(res.Reason, "database") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestSelectShortLivedScalarGoesToMemory(t *testing.T) {
	res := Select(Config{}, allKinds, Input{Key: "k", Size: 10, DataType: cachecore.DataScalar, TTL: time.Minute})
	if res.Backend != cachecore.KindMemory {
		t.Fatalf("expected memory, got %s (%v)", res.Backend, res.Scores)
	}
}

func TestSelectCookieNeverWinsForBinary(t *testing.T) {
	res := Select(Config{}, []cachecore.Kind{cachecore.KindCookie, cachecore.KindMemory}, Input{Size: 10, DataType: cachecore.DataBinary})
	if res.Scores[cachecore.KindCookie] != 0 {
		t.Fatalf("expected zero cookie score, got %v", res.Scores[cachecore.KindCookie])
	}
	if res.Backend != cachecore.KindMemory {
		t.Fatalf("expected memory, got %s", res.Backend)
	}
}

func TestSelectWithoutTTLPrefersPersistentForScalars(t *testing.T) {
	res := Select(Config{}, allKinds, Input{Size: 50 * 1024, DataType: cachecore.DataScalar})
	if res.Backend != cachecore.KindPersistent {
		t.Fatalf("expected persistent, got %s (%v)", res.Backend, res.Scores)
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	in := Input{Key: "k", Size: 2048, DataType: cachecore.DataArray, TTL: 2 * time.Hour}
	first := Select(Config{}, allKinds, in)
	for i := 0; i < 20; i++ {
		got := Select(Config{}, allKinds, in)
		if !reflect.DeepEqual(first, got) {
			t.Fatalf("selection changed between calls: %+v vs %+v", first, got)
		}
	}
}

func TestSelectTieKeepsCandidateOrder(t *testing.T) {
	cfg := Config{Priority: []cachecore.Kind{cachecore.KindDatabase}}
	res := Select(cfg, []cachecore.Kind{cachecore.KindSession, cachecore.KindMemory}, Input{Size: 2 * 1024 * 1024, DataType: cachecore.DataScalar})
	if res.Backend != cachecore.KindSession {
		t.Fatalf("expected session on a zero-score tie, got %s (%v)", res.Backend, res.Scores)
	}
	if res.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", res.Confidence)
	}
}

func TestSelectPriorityBreaksOtherwiseEqualScores(t *testing.T) {
	in := Input{Size: 2 * 1024 * 1024, DataType: cachecore.DataScalar}
	a := Select(Config{Priority: []cachecore.Kind{cachecore.KindMemory, cachecore.KindCookie}}, []cachecore.Kind{cachecore.KindCookie, cachecore.KindMemory}, in)
	if a.Backend != cachecore.KindMemory {
		t.Fatalf("expected memory, got %s", a.Backend)
	}
}

func TestSelectConfidenceBounds(t *testing.T) {
	res := Select(Config{}, []cachecore.Kind{cachecore.KindMemory}, Input{Size: 1, TTL: time.Second})
	// 0.5 ttl + 0.05 priority, no runner-up.
	want := 0.5*0.55 + 0.5*0.55
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Fatalf("expected confidence %v, got %v", want, res.Confidence)
	}
	if got := Select(Config{}, nil, Input{}); got.Backend != "" {
		t.Fatalf("expected empty result with no candidates")
	}
}

func TestSelectCustomThresholds(t *testing.T) {
	cfg := Config{TTL: TTLThresholds{Short: time.Hour}}
	res := Select(cfg, allKinds, Input{Size: 10, TTL: 30 * time.Minute})
	if res.Backend != cachecore.KindMemory {
		t.Fatalf("expected memory with widened short threshold, got %s", res.Backend)
	}
}

func TestClassify(t *testing.T) {
	type user struct{ Name string }
	cases := []struct {
		in   any
		want cachecore.DataType
	}{
		{nil, cachecore.DataScalar},
		{"s", cachecore.DataScalar},
		{42, cachecore.DataScalar},
		{3.5, cachecore.DataScalar},
		{true, cachecore.DataScalar},
		{[]byte("x"), cachecore.DataBinary},
		{[4]byte{}, cachecore.DataBinary},
		{map[string]int{"a": 1}, cachecore.DataObject},
		{user{Name: "n"}, cachecore.DataObject},
		{&user{Name: "n"}, cachecore.DataObject},
		{[]string{"a"}, cachecore.DataArray},
		{(*user)(nil), cachecore.DataScalar},
	}
	for _, tc := range cases {
		if got := Classify(tc.in); got != tc.want {
			t.Fatalf("Classify(%#v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

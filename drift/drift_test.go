package drift

import (
	"strings"
	"testing"
)

const modsPage = `<html><head><title>GTID</title></head><body>
<section id="modsChecker"><ul>
<li class="flex items-start"><span class="break-words">ubiops</span></li>
<li class="flex items-start"><span class="break-words">windyplay</span></li>
</ul></section></body></html>`

const redesigned = `<html><body><main class="grid"><table class="staff"><thead><tr><th>Name</th></tr></thead>
<tbody><tr><td class="cell">ubiops</td></tr><tr><td class="cell">windyplay</td></tr></tbody></table>
<footer class="foot"><nav><a href="/">home</a><a href="/about">about</a></nav></footer></main></body></html>`

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestFingerprint_IgnoresText(t *testing.T) {
	other := strings.NewReplacer("ubiops", "alice", "windyplay", "bob", "GTID", "Home").Replace(modsPage)
	if a, b := Fingerprint(modsPage), Fingerprint(other); a != b {
		t.Errorf("text-only change moved the fingerprint by %d bits", Distance(a, b))
	}
}

func TestFingerprint_ClassOrderInsensitive(t *testing.T) {
	swapped := strings.ReplaceAll(modsPage, `class="flex items-start"`, `class="items-start flex"`)
	if Fingerprint(modsPage) != Fingerprint(swapped) {
		t.Error("class order should not affect the fingerprint")
	}
}

func TestFingerprint_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "plain text with no tags"} {
		if fp := Fingerprint(in); fp != 0 {
			t.Errorf("Fingerprint(%q) = %064b, want 0", in, fp)
		}
	}
}

func TestFingerprint_FewElements(t *testing.T) {
	if Fingerprint("<br/>") == 0 {
		t.Error("a single element should still produce a fingerprint")
	}
}

func TestStructureTokens(t *testing.T) {
	got := structureTokens(`<div id="modsChecker" class="b a"><span class="break-words">x</span></div>`)
	want := []string{"div#modsChecker.a.b", "span.break-words"}
	if len(got) != len(want) {
		t.Fatalf("structureTokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestShingles(t *testing.T) {
	got := shingles([]string{"a", "b", "c", "d"}, 3)
	want := []string{"a b c", "b c d"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("shingles = %v, want %v", got, want)
	}
	if shingles([]string{"a", "b"}, 3) != nil {
		t.Error("expected nil for fewer tokens than n")
	}
}

func TestTracker_Observe(t *testing.T) {
	tr := NewTracker(0)
	if tr.Threshold() != DefaultThreshold {
		t.Fatalf("Threshold = %d, want %d", tr.Threshold(), DefaultThreshold)
	}

	first := tr.Observe(modsPage)
	if first.Fingerprint == 0 || first.Distance != 0 || first.Drifted {
		t.Errorf("first observation = %+v, want fingerprint only", first)
	}

	same := tr.Observe(strings.ReplaceAll(modsPage, "windyplay", "someone"))
	if same.Distance != 0 || same.Drifted {
		t.Errorf("unchanged structure = %+v, want no drift", same)
	}

	changed := tr.Observe(redesigned)
	if !changed.Drifted {
		t.Errorf("redesign not detected: distance %d, threshold %d", changed.Distance, tr.Threshold())
	}

	// The redesign becomes the new baseline.
	again := tr.Observe(redesigned)
	if again.Drifted || again.Distance != 0 {
		t.Errorf("repeat of new layout = %+v, want no drift", again)
	}
}

func TestTracker_IgnoresEmptyDocuments(t *testing.T) {
	tr := NewTracker(5)
	tr.Observe(modsPage)
	if obs := tr.Observe(""); obs != (Observation{}) {
		t.Errorf("empty document observation = %+v, want zero", obs)
	}
	if obs := tr.Observe(modsPage); obs.Distance != 0 {
		t.Errorf("baseline lost after empty document: distance %d", obs.Distance)
	}
}

package live

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"bili_bot/internal/model"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name            string
		current, stored bool
		want            model.Transition
	}{
		{name: "offline stays offline", current: false, stored: false, want: model.TransitionNone},
		{name: "goes live", current: true, stored: false, want: model.WentLive},
		{name: "stays live", current: true, stored: true, want: model.TransitionNone},
		{name: "goes offline", current: false, stored: true, want: model.WentOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.current, tt.stored)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiffSequenceNotifiesOnce(t *testing.T) {
	seq := []bool{false, true, true, false}
	stored := seq[0]

	var got []model.Transition
	for _, current := range seq[1:] {
		tr := Diff(current, stored)
		got = append(got, tr)
		stored = Apply(tr, stored)
	}

	want := []model.Transition{model.WentLive, model.TransitionNone, model.WentOffline}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestApply(t *testing.T) {
	if !Apply(model.WentLive, false) {
		t.Error("WentLive should store true")
	}
	if Apply(model.WentOffline, true) {
		t.Error("WentOffline should store false")
	}
	if !Apply(model.TransitionNone, true) {
		t.Error("no transition should keep stored value")
	}
}

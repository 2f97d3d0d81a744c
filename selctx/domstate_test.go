package selctx

import "testing"

func TestClassifyDOMState(t *testing.T) {
	tests := []struct {
		name string
		html string
		want DOMState
	}{
		{
			name: "live majority",
			html: `<div><span>Live score: 2-1</span><p>Match started, 2nd half in progress</p></div>`,
			want: StateLive,
		},
		{
			name: "finished majority",
			html: `<div>Full time. Final score 3-0. Match ended.</div>`,
			want: StateFinished,
		},
		{
			name: "scheduled majority",
			html: `<div>Kick-off at 20:00. Upcoming fixture, not started.</div>`,
			want: StateScheduled,
		},
		{
			name: "tie is unknown",
			html: `<p>live score</p><p>full time</p>`,
			want: StateUnknown,
		},
		{
			name: "no evidence is unknown",
			html: `<p>The weather is nice today.</p>`,
			want: StateUnknown,
		},
		{
			name: "empty is unknown",
			html: ``,
			want: StateUnknown,
		},
		{
			name: "markup never counts",
			html: `<div class="live-score-widget" data-state="full time"></div><p>plain text</p>`,
			want: StateUnknown,
		},
		{
			name: "short token needs word boundary",
			html: `<p>soft lofty drift</p>`, // contains "ft" inside words only
			want: StateUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDOMState(tt.html); got != tt.want {
				t.Fatalf("ClassifyDOMState = %q, want %q", got, tt.want)
			}
		})
	}
}

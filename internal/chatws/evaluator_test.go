package chatws

import (
	"testing"
	"time"
)

func readySnapshot() Snapshot {
	return Snapshot{Ready: true, Registered: true, CanUseSockets: true, TransportBuildOK: true}
}

func TestEvaluatorPriorityOrder(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		in   evaluatorInputs
		want DesiredState
	}{
		{
			name: "not ready beats everything",
			in: evaluatorInputs{
				app:                Snapshot{Ready: false},
				hasPendingRequests: true,
				now:                now,
			},
			want: ClosedState("!appReady"),
		},
		{
			name: "not registered beats expired",
			in: evaluatorInputs{
				app: Snapshot{Ready: true, Registered: false, Expired: true},
				now: now,
			},
			want: ClosedState("!registered"),
		},
		{
			name: "expired beats cannot use sockets",
			in: evaluatorInputs{
				app: Snapshot{Ready: true, Registered: true, Expired: true, CanUseSockets: false},
				now: now,
			},
			want: ClosedState("appExpired"),
		},
		{
			name: "cannot use sockets beats pending requests",
			in: evaluatorInputs{
				app:                Snapshot{Ready: true, Registered: true, CanUseSockets: false},
				hasPendingRequests: true,
				now:                now,
			},
			want: ClosedState("!canAppUseSockets"),
		},
		{
			name: "pending requests beat unsubmitted tokens",
			in: evaluatorInputs{
				app:                readySnapshot(),
				hasPendingRequests: true,
				unsubmittedTokens:  3,
				now:                now,
			},
			want: OpenState("hasPendingRequests"),
		},
		{
			name: "unsubmitted tokens beat transport build failure priority",
			in: evaluatorInputs{
				app:               Snapshot{Ready: true, Registered: true, CanUseSockets: true, TransportBuildOK: false},
				unsubmittedTokens: 1,
				now:               now,
			},
			want: OpenState("unsubmittedRequestTokens"),
		},
		{
			name: "cannot build beats app active",
			in: evaluatorInputs{
				app: Snapshot{Ready: true, Registered: true, CanUseSockets: true, TransportBuildOK: false, Active: true},
				now: now,
			},
			want: ClosedState("cannotBuild"),
		},
		{
			name: "app active beats background keep-alive",
			in: evaluatorInputs{
				app:                 Snapshot{Ready: true, Registered: true, CanUseSockets: true, TransportBuildOK: true, Active: true},
				backgroundKeepAlive: true,
				now:                 now,
			},
			want: OpenState("appActive"),
		},
		{
			name: "background keep-alive alone opens",
			in: evaluatorInputs{
				app:                 readySnapshot(),
				backgroundKeepAlive: true,
				now:                 now,
			},
			want: OpenState("hasBackgroundKeepAlive"),
		},
		{
			name: "default closes",
			in: evaluatorInputs{
				app: readySnapshot(),
				now: now,
			},
			want: ClosedState("default"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.in)
			if !got.Equal(tc.want) {
				t.Fatalf("Evaluate() = %s, want %s", got, tc.want)
			}
		})
	}
}

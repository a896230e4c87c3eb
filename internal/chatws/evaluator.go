package chatws

import "time"

// evaluatorInputs is everything the desired-state evaluator reads. It is
// assembled fresh on every reconcile so the evaluator itself stays a pure
// function (spec section 4.D) — no locking happens inside Evaluate.
type evaluatorInputs struct {
	app                Snapshot
	hasPendingRequests bool
	unsubmittedTokens  int
	backgroundKeepAlive bool
	now                time.Time
}

// Evaluate computes the desired state from observed inputs. Order matters —
// first match wins, exactly as spec section 4.D enumerates it.
func Evaluate(in evaluatorInputs) DesiredState {
	switch {
	case !in.app.Ready:
		return ClosedState("!appReady")
	case !in.app.Registered:
		return ClosedState("!registered")
	case in.app.Expired:
		return ClosedState("appExpired")
	case !in.app.CanUseSockets:
		return ClosedState("!canAppUseSockets")
	case in.hasPendingRequests:
		return OpenState("hasPendingRequests")
	case in.unsubmittedTokens > 0:
		return OpenState("unsubmittedRequestTokens")
	case !in.app.TransportBuildOK:
		return ClosedState("cannotBuild")
	case in.app.Active:
		return OpenState("appActive")
	case in.backgroundKeepAlive:
		return OpenState("hasBackgroundKeepAlive")
	default:
		return ClosedState("default")
	}
}

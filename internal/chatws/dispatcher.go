package chatws

import "context"

// MakeRequest submits req on this kind's connection and blocks until a
// response or terminal error arrives, or ctx is cancelled (spec section
// 4.F). Cancelling ctx stops the caller from waiting any longer but never
// cancels the request itself — it may still complete (or time out) on the
// wire, and its token is removed unconditionally either way.
func (c *Controller) MakeRequest(ctx context.Context, req OutboundRequest) ([]byte, error) {
	if c.appState.Snapshot().Expired {
		return nil, &InvalidAppStateError{URL: req.URL}
	}

	token := c.MakeToken(ctx)
	defer c.ReleaseToken(ctx, token)

	pr, err := c.Submit(req)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-pr.resultCh:
		if res.err != nil {
			return nil, res.err
		}
		if c.outage != nil {
			c.outage.ReportConnectionSuccess(c.kind)
		}
		return res.body, nil
	case <-ctx.Done():
		// The request keeps running against the registry's own 10s timeout
		// or a real response; we simply stop waiting on it here.
		return nil, &RequestAbandonedError{URL: req.URL}
	}
}

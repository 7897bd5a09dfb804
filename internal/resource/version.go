package resource

import (
	"context"

	"github.com/llm-d/llm-d-fleet-consistency/internal/poller"
)

// LatestVersion polls until the resource is readable and returns its current
// resourceVersion. A NotFound read is retried because a freshly created
// resource may not be visible yet; any other error aborts.
func LatestVersion(ctx context.Context, store Store, p *poller.Poller, ref Ref) (string, error) {
	version, outcome, err := poller.Until(ctx, p, func(ctx context.Context, _ int) (string, bool, error) {
		obj, err := store.Get(ctx, ref)
		switch Classify(err) {
		case Success:
			return obj.GetResourceVersion(), true, nil
		case NotFound:
			return "", false, nil
		default:
			return "", false, err
		}
	})
	if err != nil {
		return "", err
	}
	if !outcome.Ready {
		return "", poller.NewTimeoutError("look up version of", ref.String(), outcome, nil)
	}
	return version, nil
}

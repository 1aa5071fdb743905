package realtime

import (
	"context"

	"github.com/smallbiznis/nexusguard/internal/accesscontrol"
	jrdomain "github.com/smallbiznis/nexusguard/internal/joinrequest/domain"
	"github.com/smallbiznis/nexusguard/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"go.uber.org/zap"
)

// StateLoader reads the latest organization snapshot together with every
// join request targeting it.
type StateLoader interface {
	Load(ctx context.Context, eid string) (*orgdomain.Snapshot, []jrdomain.JoinRequest, error)
}

type repositoryLoader struct {
	orgs     orgdomain.Repository
	requests jrdomain.Repository
}

func NewRepositoryLoader(orgs orgdomain.Repository, requests jrdomain.Repository) StateLoader {
	return &repositoryLoader{orgs: orgs, requests: requests}
}

func (l *repositoryLoader) Load(ctx context.Context, eid string) (*orgdomain.Snapshot, []jrdomain.JoinRequest, error) {
	snap, err := l.orgs.LoadSnapshot(ctx, eid)
	if err != nil {
		return nil, nil, err
	}
	if snap == nil {
		return nil, nil, orgdomain.ErrUnknownTarget
	}
	requests, err := l.requests.ListByTarget(ctx, eid)
	if err != nil {
		return nil, nil, err
	}
	return snap, requests, nil
}

// Watcher turns change notifications into freshly derived views. Every event
// triggers a full reload and recomputation; nothing is patched incrementally.
type Watcher struct {
	broker  Broker
	loader  StateLoader
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewWatcher builds a Watcher. m may be nil.
func NewWatcher(broker Broker, loader StateLoader, log *zap.Logger, m *metrics.Metrics) *Watcher {
	return &Watcher{broker: broker, loader: loader, log: log.Named("realtime.watcher"), metrics: m}
}

// Current derives the view once without subscribing.
func (w *Watcher) Current(ctx context.Context, eid, identityID string) (accesscontrol.View, error) {
	snap, requests, err := w.loader.Load(ctx, eid)
	if err != nil {
		return accesscontrol.View{}, err
	}
	return accesscontrol.Derive(*snap, requests, identityID), nil
}

// Watch emits the current view immediately and a recomputed one after every
// change to the organization or its requests. The channel is closed when ctx
// ends. Only the latest view is kept for slow readers.
func (w *Watcher) Watch(ctx context.Context, eid, identityID string) (<-chan accesscontrol.View, error) {
	orgSub, err := w.broker.Subscribe(ctx, OrgChannel(eid))
	if err != nil {
		return nil, err
	}
	reqSub, err := w.broker.Subscribe(ctx, RequestsChannel(eid))
	if err != nil {
		orgSub.Close()
		return nil, err
	}
	// Subscribed before the first load so no change slips between the two.
	initial, err := w.Current(ctx, eid, identityID)
	if err != nil {
		orgSub.Close()
		reqSub.Close()
		return nil, err
	}

	out := make(chan accesscontrol.View, 1)
	out <- initial

	go func() {
		defer close(out)
		defer orgSub.Close()
		defer reqSub.Close()

		for {
			var (
				event Event
				ok    bool
			)
			select {
			case <-ctx.Done():
				return
			case event, ok = <-orgSub.Events():
			case event, ok = <-reqSub.Events():
			}
			if !ok {
				return
			}

			view, err := w.Current(ctx, eid, identityID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Warn("view reload failed",
					zap.String("eid", eid),
					zap.String("event_id", event.ID),
					zap.Error(err),
				)
				continue
			}
			w.metrics.RecordViewRecompute(ctx, eid)
			offerLatest(out, view)
		}
	}()

	return out, nil
}

func offerLatest(out chan accesscontrol.View, view accesscontrol.View) {
	for {
		select {
		case out <- view:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

package social

import (
	"context"
	"errors"
	"sort"

	"github.com/mynews-app/service_layer/internal/app/domain/reaction"
	"github.com/mynews-app/service_layer/internal/app/metrics"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
)

// ErrAggregatorClosed is returned by SetFriends after Close.
var ErrAggregatorClosed = errors.New("social: aggregator closed")

// ReactionWatcher opens a live subscription to the reactions of one user.
type ReactionWatcher interface {
	WatchReactions(ctx context.Context, uid string, fn func([]reaction.Reaction, error)) (docstore.Subscription, error)
}

// Aggregator merges the reactions of a changing set of friends into one feed
// sorted newest first. One goroutine owns every subscription and cache;
// SetFriends and snapshot deliveries reach it as messages.
//
// emit runs on that goroutine and must not call SetFriends or Close.
type Aggregator struct {
	watcher ReactionWatcher
	emit    func([]reaction.Reaction)
	log     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan any
	done   chan struct{}
}

type setFriendsMsg struct {
	ids   []string
	reply chan struct{}
}

type snapshotMsg struct {
	friendID string
	gen      uint64
	list     []reaction.Reaction
	err      error
}

type friendSub struct {
	gen uint64
	sub docstore.Subscription
}

// NewAggregator starts an aggregator that calls emit with every merged feed.
func NewAggregator(ctx context.Context, watcher ReactionWatcher, emit func([]reaction.Reaction), log *logging.Logger) *Aggregator {
	if log == nil {
		log = logging.NewDefault("social")
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &Aggregator{
		watcher: watcher,
		emit:    emit,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan any, 16),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// SetFriends replaces the set of followed friends and returns once the
// change is applied. Subscriptions of friends still in the set are kept.
func (a *Aggregator) SetFriends(ids []string) error {
	msg := setFriendsMsg{ids: append([]string(nil), ids...), reply: make(chan struct{})}
	if !a.post(msg) {
		return ErrAggregatorClosed
	}
	select {
	case <-msg.reply:
		return nil
	case <-a.done:
		return ErrAggregatorClosed
	}
}

// Close stops every subscription and waits for the owner goroutine.
func (a *Aggregator) Close() {
	a.cancel()
	<-a.done
}

func (a *Aggregator) post(msg any) bool {
	select {
	case a.inbox <- msg:
		return true
	case <-a.ctx.Done():
		return false
	}
}

func (a *Aggregator) run() {
	subs := make(map[string]*friendSub)
	cache := make(map[string][]reaction.Reaction)
	var nextGen uint64

	defer func() {
		for _, fs := range subs {
			fs.sub.Stop()
		}
		metrics.AddSocialSubscriptions(-len(subs))
		close(a.done)
	}()

	publish := func() {
		merged := make([]reaction.Reaction, 0)
		for _, list := range cache {
			merged = append(merged, list...)
		}
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		})
		a.emit(merged)
	}

	for {
		select {
		case <-a.ctx.Done():
			return
		case raw := <-a.inbox:
			switch msg := raw.(type) {
			case setFriendsMsg:
				want := make(map[string]bool, len(msg.ids))
				for _, id := range msg.ids {
					want[id] = true
				}

				removed := 0
				for id, fs := range subs {
					if want[id] {
						continue
					}
					fs.sub.Stop()
					delete(subs, id)
					delete(cache, id)
					removed++
				}
				if removed > 0 {
					metrics.AddSocialSubscriptions(-removed)
					publish()
				}

				for _, id := range msg.ids {
					if _, ok := subs[id]; ok {
						continue
					}
					nextGen++
					gen, friendID := nextGen, id
					sub, err := a.watcher.WatchReactions(a.ctx, friendID, func(list []reaction.Reaction, err error) {
						a.post(snapshotMsg{friendID: friendID, gen: gen, list: list, err: err})
					})
					if err != nil {
						a.log.WithError(err).WithField("friend", friendID).Warn("watch friend reactions")
						continue
					}
					subs[friendID] = &friendSub{gen: gen, sub: sub}
					metrics.AddSocialSubscriptions(1)
				}
				close(msg.reply)

			case snapshotMsg:
				fs, ok := subs[msg.friendID]
				if !ok || fs.gen != msg.gen {
					continue
				}
				if msg.err != nil {
					a.log.WithError(msg.err).WithField("friend", msg.friendID).Warn("friend reaction feed ended")
					fs.sub.Stop()
					delete(subs, msg.friendID)
					delete(cache, msg.friendID)
					metrics.AddSocialSubscriptions(-1)
					publish()
					continue
				}
				cache[msg.friendID] = msg.list
				publish()
			}
		}
	}
}

// Package livesync streams board snapshots to subscribers over a Redis
// pub/sub channel. Writers publish a change signal; every subscriber then
// re-fetches the full concern list and replaces its view wholesale, so a
// subscriber can never observe a partially applied change.
package livesync

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rajeshradhakrishnanmvk/opinion/internal/store"
)

// Channel carries change signals for the concern board.
const Channel = "concerns.changed"

// Publisher signals concern-set changes to all live subscribers.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// NotifyChanged publishes a change signal. The payload is irrelevant;
// subscribers re-fetch the snapshot on any message.
func (p *Publisher) NotifyChanged(ctx context.Context) error {
	if err := p.client.Publish(ctx, Channel, "changed").Err(); err != nil {
		return fmt.Errorf("publish change signal: %w", err)
	}
	return nil
}

// Lister provides the snapshot that subscribers receive.
type Lister interface {
	List(ctx context.Context, includeDeleted bool) ([]store.Concern, error)
}

// Seeder populates the starter board when the snapshot comes up empty.
type Seeder interface {
	SeedIfEmpty(ctx context.Context) (bool, error)
}

// Engine fans board snapshots out to subscribers.
type Engine struct {
	client *redis.Client
	lister Lister
	seeder Seeder
}

func NewEngine(client *redis.Client, lister Lister, seeder Seeder) *Engine {
	return &Engine{client: client, lister: lister, seeder: seeder}
}

// Subscription is one subscriber's handle on the change feed.
type Subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc

	mu         sync.Mutex
	terminated bool
}

// Unsubscribe tears the subscription down. After it returns, the snapshot
// callback will not be invoked again.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
	s.cancel()
	if err := s.pubsub.Close(); err != nil {
		log.Printf(`{"level":"warn","msg":"pubsub close failed","error":%q}`, err.Error())
	}
}

// deliver invokes fn unless the subscription has been torn down. The lock
// spans the callback so Unsubscribe cannot return while a delivery is in
// flight.
func (s *Subscription) deliver(items []store.Concern, fn func([]store.Concern)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	fn(items)
}

// Subscribe delivers an initial snapshot, seeds the starter board if that
// snapshot is empty, and then re-delivers a full snapshot on every change
// signal until the context ends or Unsubscribe is called. A subscription
// error stops delivery; the subscriber sees its last snapshot until it
// resubscribes.
func (e *Engine) Subscribe(ctx context.Context, includeDeleted bool, fn func([]store.Concern)) (*Subscription, error) {
	items, err := e.lister.List(ctx, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}

	if len(items) == 0 && e.seeder != nil {
		seeded, err := e.seeder.SeedIfEmpty(ctx)
		if err != nil {
			// An unseeded board is still a valid board.
			log.Printf(`{"level":"warn","msg":"starter seed failed","error":%q}`, err.Error())
		}
		if seeded {
			if items, err = e.lister.List(ctx, includeDeleted); err != nil {
				return nil, fmt.Errorf("post-seed snapshot: %w", err)
			}
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	pubsub := e.client.Subscribe(subCtx, Channel)
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to change channel: %w", err)
	}

	sub := &Subscription{pubsub: pubsub, cancel: cancel}
	sub.deliver(items, fn)

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				items, err := e.lister.List(subCtx, includeDeleted)
				if err != nil {
					if subCtx.Err() != nil {
						return
					}
					log.Printf(`{"level":"warn","msg":"snapshot refresh failed, stopping subscription","error":%q}`, err.Error())
					return
				}
				sub.deliver(items, fn)
			}
		}
	}()

	return sub, nil
}

package server

import (
	"context"
	"sync"
	"time"

	"github.com/numberchain/backend/internal/posts"
)

const (
	realtimeEventReplyCreated = "reply-created"
	realtimeEventHeartbeat    = "heartbeat"
)

// ReplyEvent announces a newly persisted reply node to subscribers of its
// post.
type ReplyEvent struct {
	PostID    int64
	Node      posts.NodeView
	Timestamp time.Time
}

// RealtimeDispatcher fans reply events out to per-post subscribers. Slow
// subscribers lose events rather than block the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan ReplyEvent
}

// NewRealtimeDispatcher constructs an empty dispatcher.
func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers interest in one post's replies. The dispatcher never
// closes the returned channel; callers stop reading when ctx ends, and cleanup
// detaches the subscriber.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, postID int64) (<-chan ReplyEvent, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan ReplyEvent, d.bufferSize),
	}
	d.registerSubscriber(postID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(postID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers an event to every current subscriber of its post.
func (d *RealtimeDispatcher) Publish(event ReplyEvent) {
	d.mu.RLock()
	subscribers := d.subscribers[event.PostID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(postID int64, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[postID]; !ok {
		d.subscribers[postID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[postID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(postID, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[postID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, postID)
		}
	}
	d.mu.Unlock()
}

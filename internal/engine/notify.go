package engine

import (
	"sync"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// Notifier fans engine-initiated responses out to live delivery
	// channels. Event resumptions and sweeps produce responses with no
	// requester attached; anything holding a consumer gets them.
	Notifier struct {
		queue     topic.Topic[*api.Notification]
		prod      topic.Producer[*api.Notification]
		buffer    int
		closeOnce sync.Once
	}

	// NotificationConsumer receives published notifications
	NotificationConsumer = topic.Consumer[*api.Notification]
)

// NewNotifier creates a notification hub. The buffer bounds how far a slow
// websocket consumer may fall behind before its relay drops messages.
func NewNotifier(buffer int) *Notifier {
	queue := caravan.NewTopic[*api.Notification]()
	return &Notifier{
		queue:  queue,
		prod:   queue.NewProducer(),
		buffer: buffer,
	}
}

// Publish hands a notification to every attached consumer
func (n *Notifier) Publish(note *api.Notification) {
	if note == nil || note.Response.IsEmpty() {
		return
	}
	message.Send(n.prod, note)
	metrics.RecordNotification()
}

// NewConsumer attaches a fresh consumer to the notification stream
func (n *Notifier) NewConsumer() NotificationConsumer {
	return n.queue.NewConsumer()
}

// Buffer reports the configured per-relay buffer size
func (n *Notifier) Buffer() int {
	return n.buffer
}

// Close shuts the producer side of the hub down
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		n.prod.Close()
	})
}

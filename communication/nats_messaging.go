package communication

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/NethermindEth/chaosfeed/core"
)

// Subject kinds under the configured prefix.
const (
	SubjectActivity = "activity"
	SubjectLog      = "log"
	SubjectState    = "state"
)

// Message is the JSON body of every published event.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Published time.Time       `json:"published"`
}

// NATSPublisher publishes store events on <prefix>.activity, <prefix>.log and
// <prefix>.state.
type NATSPublisher struct {
	NC     *nats.Conn
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewNATSPublisher connects to the server at url.
func NewNATSPublisher(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "chaosfeed"
	}
	nc, err := nats.Connect(url,
		nats.Name("chaosfeed"),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{NC: nc, prefix: prefix, logger: logger.Named("nats"), now: time.Now}, nil
}

// Subject returns the full subject for a kind.
func (p *NATSPublisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

// SubjectFor maps a store event to its subject kind. Events with no kind are
// not published.
func SubjectFor(t core.EventType) (string, bool) {
	switch t {
	case core.EventNotification, core.EventFeedUpdated, core.EventPostLiked:
		return SubjectActivity, true
	case core.EventLogAppended:
		return SubjectLog, true
	case core.EventStateChanged, core.EventAgentsChanged:
		return SubjectState, true
	}
	return "", false
}

// Publish sends one store event.
func (p *NATSPublisher) Publish(ev core.Event) error {
	kind, ok := SubjectFor(ev.Type)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}
	data, err := json.Marshal(Message{Type: string(ev.Type), Payload: payload, Published: p.now()})
	if err != nil {
		return err
	}
	return p.NC.Publish(p.Subject(kind), data)
}

// Forward publishes events until the channel closes or ctx is done, then
// flushes what is buffered.
func (p *NATSPublisher) Forward(ctx context.Context, events <-chan core.Event) {
	defer func() {
		if err := p.NC.Flush(); err != nil {
			p.logger.Debug("flush failed", zap.Error(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(ev); err != nil {
				p.logger.Warn("publish failed", zap.String("type", string(ev.Type)), zap.Error(err))
			}
		}
	}
}

// Subscribe delivers every message under the prefix to handler.
func (p *NATSPublisher) Subscribe(handler func(subject string, msg Message)) (*nats.Subscription, error) {
	return p.NC.Subscribe(p.prefix+".>", func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			p.logger.Debug("skipping malformed message", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		handler(m.Subject, msg)
	})
}

// Close gracefully closes the connection.
func (p *NATSPublisher) Close() {
	p.NC.Close()
}

package core

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns the application State. Dispatch serializes transitions and fans the
// resulting events out to subscribers in order.
type Store struct {
	mu      sync.Mutex
	state   State
	subs    map[int]chan Event
	nextSub int
	dropped int
	now     func() time.Time
}

// NewStore creates a store holding initial.
func NewStore(initial State) *Store {
	return &Store{
		state: initial.Clone(),
		subs:  make(map[int]chan Event),
		now:   time.Now,
	}
}

// SetClock replaces the time source used by the helper methods.
func (st *Store) SetClock(now func() time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.now = now
}

// Now returns the store's notion of the current time.
func (st *Store) Now() time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.now()
}

// Dispatch applies msg. Subscribers whose buffer is full miss the event; they
// can always recover by taking a Snapshot.
func (st *Store) Dispatch(msg Msg) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	next, events, err := Reduce(st.state, msg)
	if err != nil {
		return err
	}
	st.state = next
	for _, ev := range events {
		for _, ch := range st.subs {
			select {
			case ch <- ev:
			default:
				st.dropped++
			}
		}
	}
	return nil
}

// Snapshot returns a deep copy of the current state.
func (st *Store) Snapshot() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.Clone()
}

// View runs fn against the current state without copying it. fn must not retain
// any slice of the state nor call back into the store.
func (st *Store) View(fn func(s *State)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.state)
}

// Subscribe registers a buffered event channel. The returned func unsubscribes
// and closes the channel.
func (st *Store) Subscribe(buffer int) (<-chan Event, func()) {
	st.mu.Lock()
	defer st.mu.Unlock()

	id := st.nextSub
	st.nextSub++
	ch := make(chan Event, buffer)
	st.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			delete(st.subs, id)
			close(ch)
		})
	}
}

// Dropped reports how many events were discarded because a subscriber lagged.
func (st *Store) Dropped() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dropped
}

// AddAgent validates the name and bio and creates an agent with a fresh id.
func (st *Store) AddAgent(name, bio string) (Agent, error) {
	name, bio = strings.TrimSpace(name), strings.TrimSpace(bio)
	if err := ValidateSeed(name, bio); err != nil {
		return Agent{}, err
	}
	id := uuid.New().String()
	if err := st.Dispatch(AddAgent{ID: id, Name: name, Bio: bio, At: st.Now()}); err != nil {
		return Agent{}, err
	}
	a, _ := st.Snapshot().Agent(id)
	return a, nil
}

// DeleteAgent removes the agent with the given id.
func (st *Store) DeleteAgent(id string) error {
	return st.Dispatch(DeleteAgent{ID: id, At: st.Now()})
}

// LoadAgents replaces the roster with seeds, assigning fresh ids.
func (st *Store) LoadAgents(seeds []AgentSeed, source string) error {
	ids := make([]string, len(seeds))
	for i := range seeds {
		ids[i] = uuid.New().String()
	}
	return st.Dispatch(LoadAgents{IDs: ids, Seeds: seeds, Source: source, At: st.Now()})
}

// SetTopic changes the discussion topic while the simulation is idle.
func (st *Store) SetTopic(topic string) error {
	return st.Dispatch(SetTopic{Topic: strings.TrimSpace(topic)})
}

// Log appends a line to the system monitor.
func (st *Store) Log(level LogLevel, emoji, msg string) {
	_ = st.Dispatch(AppendLog{Entry: LogEntry{Timestamp: st.Now(), Level: level, Emoji: emoji, Message: msg}})
}

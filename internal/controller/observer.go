package controller

import "time"

// Variant classifies a Notification the way the UI styles it.
type Variant string

const (
	VariantSuccess Variant = "success"
	VariantWarning Variant = "warning"
	VariantError   Variant = "error"
)

// Notification is a dismissible, user-visible message.
type Notification struct {
	Variant Variant   `json:"variant"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Observer is told about every notification and every state change.
// Callbacks run on the goroutine that caused the change and must not block
// for long.
type Observer interface {
	Notified(n Notification)
	StateChanged(s Snapshot)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnNotify func(Notification)
	OnState  func(Snapshot)
}

func (o ObserverFuncs) Notified(n Notification) {
	if o.OnNotify != nil {
		o.OnNotify(n)
	}
}

func (o ObserverFuncs) StateChanged(s Snapshot) {
	if o.OnState != nil {
		o.OnState(s)
	}
}

// Subscribe registers o and returns a function that removes it again.
func (c *Controller) Subscribe(o Observer) func() {
	c.obsMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = o
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Controller) snapshotObservers() []Observer {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	out := make([]Observer, 0, len(c.observers))
	for id := 0; id < c.nextObsID; id++ {
		if o, ok := c.observers[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

func (c *Controller) notify(v Variant, msg string) {
	n := Notification{Variant: v, Message: msg, At: c.clock.Now()}
	for _, o := range c.snapshotObservers() {
		o.Notified(n)
	}
}

func (c *Controller) publishState() {
	s := c.Snapshot()
	for _, o := range c.snapshotObservers() {
		o.StateChanged(s)
	}
}

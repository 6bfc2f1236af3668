package commandbus

// FakeRuntime is a test double standing in for the async runtime,
// letting front-end-side code be tested in isolation without a real
// executor. Grounded on the original implementation's IPC test harness
// (a fake command-bus receiver used the same way).
type FakeRuntime struct {
	bus *Bus
	// Handler, if set, computes a reply for each received command. The
	// default just echoes an empty success reply.
	Handler func(Command) Reply
	stop    chan struct{}
}

func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{bus: New(), stop: make(chan struct{})}
}

// Sender returns the handle front-end test code should send commands on.
func (f *FakeRuntime) Sender() Sender { return f.bus.Sender() }

// Run services the bus until Stop is called, applying Handler (or the
// default echo) to every received command.
func (f *FakeRuntime) Run() {
	recv := f.bus.Receiver()
	for {
		select {
		case cmd, ok := <-recv.Recv():
			if !ok {
				return
			}
			var reply Reply
			if f.Handler != nil {
				reply = f.Handler(cmd)
			}
			Respond(cmd, reply.Value, reply.Err)
		case <-f.stop:
			return
		}
	}
}

func (f *FakeRuntime) Stop() { close(f.stop) }

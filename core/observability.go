package core

// RuntimeStats represents runtime observability state.
type RuntimeStats struct {
	Name    string
	Flavor  Flavor
	Workers int
	Running bool

	Queued  int // global + local queues + LIFO slots
	Active  int // tasks currently executing on workers
	Delayed int // tasks waiting in the time driver

	BlockingThreads     int
	IdleBlockingThreads int
	BlockingQueued      int

	Spawned   uint64
	Rejected  uint64
	LIFOPolls uint64
	Steals    uint64

	LIFOSlotEnabled bool
}

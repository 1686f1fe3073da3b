package campaign

// Observer receives batch progress as it happens. Calls are made from the
// goroutine running the batch and must not block for long.
type Observer interface {
	BatchStarted(batchID string, total int)
	ContactFinished(o Outcome)
	BatchFinished(s Summary)
}

type NopObserver struct{}

func (NopObserver) BatchStarted(string, int) {}
func (NopObserver) ContactFinished(Outcome)  {}
func (NopObserver) BatchFinished(Summary)    {}

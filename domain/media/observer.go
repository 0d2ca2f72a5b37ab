package media

// Observer receives human-readable status lines while a container operation runs.
// It is called synchronously on the caller's goroutine.
type Observer interface {
	OnStatus(msg string)
}

// ObserverFunc adapts a plain function to the Observer interface
type ObserverFunc func(msg string)

// OnStatus implements Observer
func (f ObserverFunc) OnStatus(msg string) {
	f(msg)
}

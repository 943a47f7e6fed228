package feed

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

// Tee publishes every event to each of pubs in order.
func Tee(pubs ...Publisher) Publisher {
	return PublisherFunc(func(ev Event) {
		for _, p := range pubs {
			p.Publish(ev)
		}
	})
}

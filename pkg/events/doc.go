/*
Package events broadcasts lifecycle changes of Cassandra instances.

Every state an instance enters is published as an Event of the matching
type (cassandra.starting, cassandra.started, cassandra.stop_failed, ...).
The broker is in-memory and non-blocking: Publish hands the event to a
buffered channel (100 events) and a distribution loop copies it into each
subscriber channel (50 events each). Subscribers that fall behind miss
events rather than stall the instance.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	c, _ := cassandra.New(cassandra.Config{Events: broker, ...})
	go func() {
		for ev := range sub {
			fmt.Println(ev.Instance, ev.Type)
		}
	}()

Publishing on a nil *Broker is a no-op, so callers that do not care about
events need not create one.
*/
package events

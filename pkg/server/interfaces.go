package server

import "net/netip"

// Outbox delivers an encoded application message to an endpoint.
// Handlers and the router only ever talk to the network through it.
type Outbox interface {
	Deliver(to netip.AddrPort, message string) error
}

// DeliveryJournal records the outcome of every routed message.
// Implemented by database.Journal.
type DeliveryJournal interface {
	RecordRoute(sender, text string, delivered, undelivered []string) (int64, error)
}

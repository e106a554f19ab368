package server

import (
	"net/netip"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aeolun/udpchat/pkg/protocol"
)

// AnonymousSender is the sender name used when send_message arrives from an
// endpoint that never joined
const AnonymousSender = "anonymous"

// RouteResult describes what happened to one send_message request
type RouteResult struct {
	Sender     string
	Anonymous  bool
	Delivered  []string // recipients a forward_message was written to
	Unresolved []string // recipients with no active session
	Failed     []string // recipients whose write failed
}

// Router fans a message out to named recipients
type Router struct {
	registry *Registry
	outbox   Outbox
	log      zerolog.Logger
	metrics  *Metrics
	journal  DeliveryJournal
}

// NewRouter creates a router that resolves names against registry
func NewRouter(registry *Registry, outbox Outbox, logger zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		outbox:   outbox,
		log:      logger,
	}
}

// SetMetrics attaches metrics to the router
func (r *Router) SetMetrics(metrics *Metrics) {
	r.metrics = metrics
}

// SetJournal attaches a delivery journal to the router
func (r *Router) SetJournal(journal DeliveryJournal) {
	r.journal = journal
}

// Route delivers text from the session at from to each named recipient, in order,
// at most once per name. It never fails as a whole: unknown names and failed writes
// are reported per recipient in the result.
func (r *Router) Route(from netip.AddrPort, recipients []string, text string) RouteResult {
	result := RouteResult{}

	sender, ok := r.registry.NameOf(from)
	if !ok {
		sender = AnonymousSender
		result.Anonymous = true
		r.log.Warn().Str("from", from.String()).Msg("msg from unregistered endpoint")
	}
	result.Sender = sender

	forward := protocol.ForwardMessage(sender, text)

	for _, name := range lo.Uniq(recipients) {
		to, ok := r.registry.EndpointOf(name)
		if !ok {
			result.Unresolved = append(result.Unresolved, name)
			r.log.Info().Str("user", sender).Str("recipient", name).Msg("msg to non-existent user")
			continue
		}

		if err := r.outbox.Deliver(to, forward); err != nil {
			result.Failed = append(result.Failed, name)
			r.log.Error().Err(err).Str("user", sender).Str("recipient", name).Msg("forward failed")
			continue
		}

		result.Delivered = append(result.Delivered, name)
		if r.metrics != nil {
			r.metrics.RecordMessageSent(protocol.VerbForwardMessage)
		}
	}

	if r.metrics != nil {
		r.metrics.RecordRoute(result)
	}
	r.journalRoute(result, text)
	return result
}

func (r *Router) journalRoute(result RouteResult, text string) {
	if r.journal == nil {
		return
	}
	undelivered := make([]string, 0, len(result.Unresolved)+len(result.Failed))
	undelivered = append(undelivered, result.Unresolved...)
	undelivered = append(undelivered, result.Failed...)

	if _, err := r.journal.RecordRoute(result.Sender, text, result.Delivered, undelivered); err != nil {
		r.log.Warn().Err(err).Msg("failed to journal route")
	}
}

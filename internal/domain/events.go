package domain

// Notification event types emitted by the engine. The notifier filters on
// these; delivery is fire-and-forget and never blocks the core.
const (
	EventCandidateFound   = "candidate_found"
	EventRejected         = "rejected"
	EventSubmitted        = "submitted"
	EventConfirmed        = "confirmed"
	EventAbandoned        = "abandoned"
	EventEndpointFailover = "endpoint_failover"
	EventAllEndpointsDown = "all_endpoints_down"
	EventStatus           = "status"
)

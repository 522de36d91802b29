package service

// Realtime event names pushed to websocket subscribers
const (
	EventMachineMoved        = "machine.moved"
	EventSaleRecorded        = "sale.recorded"
	EventTicketUpdated       = "ticket.updated"
	EventTaxBlockTransferred = "tax_block.transferred"
	EventApprovalDecided     = "approval.decided"
)

// EventPublisher fans events out to connected dashboards
type EventPublisher interface {
	Publish(event string, data interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

package connector

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/erplink/internal/compositeid"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"go.uber.org/zap"
)

const opAcknowledge = "connector.linker.ack"

// Ack reports the host id the ERP assigned to a pulled endpoint record.
type Ack struct {
	Kind Kind     `json:"kind"`
	ID   Identity `json:"id"`
}

// AckOutcome is the result of one Ack. Error is empty on success.
type AckOutcome struct {
	Kind  Kind     `json:"kind"`
	ID    Identity `json:"id"`
	Error string   `json:"error,omitempty"`
}

// Acknowledger links host ids to pulled endpoint ids.
type Acknowledger struct {
	tx     *Transactor
	logger *zap.Logger
}

// NewAcknowledger returns an Acknowledger over the stores of tx.
func NewAcknowledger(tx *Transactor, logger *zap.Logger) *Acknowledger {
	return &Acknowledger{tx: tx, logger: loggerOrNop(logger)}
}

// Acknowledge links every ack independently. A failing ack does not stop the others; its error is
// reported in its outcome. The returned count is the number of linked acks.
func (a *Acknowledger) Acknowledge(ctx context.Context, acks []Ack) ([]AckOutcome, int) {
	outcomes := make([]AckOutcome, 0, len(acks))
	linked := 0
	for _, ack := range acks {
		outcome := AckOutcome{Kind: ack.Kind, ID: ack.ID}
		if err := a.acknowledge(ctx, ack); err != nil {
			a.logger.Warn("acknowledge failed",
				zap.String("operation", opAcknowledge),
				zap.String("kind", string(ack.Kind)),
				zap.Stringer("id", ack.ID),
				zap.Error(err))
			outcome.Error = err.Error()
		} else {
			linked++
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, linked
}

func (a *Acknowledger) acknowledge(ctx context.Context, ack Ack) error {
	if !ack.ID.Linked() {
		return newServiceError(opAcknowledge, "incomplete_identity", fmt.Errorf("%w: %s", ErrMissingEndpointID, ack.ID))
	}
	scope, err := ackScope(ack)
	if err != nil {
		return newServiceError(opAcknowledge, "invalid_identity", err)
	}
	stores := a.tx.Stores()
	exists, err := endpointExists(ctx, stores, ack)
	if err != nil {
		return err
	}
	if !exists {
		return newServiceError(opAcknowledge, "unknown_endpoint", fmt.Errorf("%w: %s %s", ErrUnknownEndpoint, ack.Kind, ack.ID))
	}
	return stores.Links.Link(ctx, scope, ack.ID.Host, ack.ID.Endpoint)
}

// endpointExists reports whether the storefront record behind an acked endpoint id is present.
// Guests need a guest order; images need the attachment and its owner.
func endpointExists(ctx context.Context, stores Stores, ack Ack) (bool, error) {
	front := stores.Storefront
	if compositeid.HasPrefix(ack.ID.Endpoint) {
		id, err := compositeid.Parse(ack.ID.Endpoint)
		if err != nil {
			return false, newServiceError(opAcknowledge, "invalid_identity", err)
		}
		switch typed := id.(type) {
		case compositeid.GuestID:
			order, found, err := front.FindOrder(ctx, typed.OrderID)
			return found && order.IsGuest(), err
		case compositeid.ProductImageID:
			return attachmentWithOwner(ctx, front, typed.AttachmentID, func() (bool, error) {
				_, found, err := front.FindProduct(ctx, typed.ProductID)
				return found, err
			})
		case compositeid.CategoryImageID:
			return attachmentWithOwner(ctx, front, typed.AttachmentID, func() (bool, error) {
				_, found, err := front.FindCategory(ctx, typed.CategoryID)
				return found, err
			})
		}
		return false, nil
	}

	endpointID, ok := numericEndpoint(ack.ID)
	if !ok {
		return false, newServiceError(opAcknowledge, "invalid_identity", fmt.Errorf("%w: %s", ErrMissingEndpointID, ack.ID))
	}
	var (
		found bool
		err   error
	)
	switch ack.Kind {
	case KindProduct:
		_, found, err = front.FindProduct(ctx, endpointID)
	case KindCategory:
		_, found, err = front.FindCategory(ctx, endpointID)
	case KindCustomer:
		_, found, err = front.FindCustomer(ctx, endpointID)
	case KindCustomerOrder, KindPayment:
		_, found, err = front.FindOrder(ctx, endpointID)
	case KindTaxRate:
		_, found, err = front.FindTaxRate(ctx, endpointID)
	case KindShippingClass:
		_, found, err = front.FindShippingClass(ctx, endpointID)
	}
	return found, err
}

func attachmentWithOwner(ctx context.Context, front *storefront.Store, attachmentID int64, owner func() (bool, error)) (bool, error) {
	_, found, err := front.FindAttachment(ctx, attachmentID)
	if err != nil || !found {
		return false, err
	}
	return owner()
}

// ackScope derives the link scope from the kind and, for customers and images, the endpoint id.
func ackScope(ack Ack) (linking.Scope, error) {
	switch ack.Kind {
	case KindCustomer:
		_, isGuest, err := guestOrder(ack.ID.Endpoint)
		if err != nil {
			return linking.Scope{}, err
		}
		return linking.GuestScope(isGuest), nil
	case KindImage:
		relation, _, _, err := decodeImage(ack.ID.Endpoint)
		if err != nil {
			return linking.Scope{}, err
		}
		return relation.linkScope, nil
	}
	linkType := linking.LinkType(ack.Kind)
	if linking.TableName(linkType) == "" {
		return linking.Scope{}, fmt.Errorf("%w: %q has no links", ErrUnknownKind, ack.Kind)
	}
	return linking.ScopeOf(linkType), nil
}

package services

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atelio-app/atelio_backend/models"
)

// Actor roles
const (
	RoleClient = "client"
	RoleArtist = "artist"
	RoleAdmin  = "admin"
)

// Actor is the authenticated identity performing an action. Identity
// verification happens upstream; the state machine only checks that the
// actor owns the side of the commission the action requires.
type Actor struct {
	ID   primitive.ObjectID
	Role string
}

// Action names every legal commission transition trigger.
type Action string

const (
	ActionAccept         Action = "accept"
	ActionDecline        Action = "decline"
	ActionRenegotiate    Action = "renegotiate"
	ActionRespondAccept  Action = "respond-accept"
	ActionRespondDecline Action = "respond-decline"
	ActionComplete       Action = "complete"
	ActionPaymentSucceed Action = "payment-success"
	ActionPaymentFail    Action = "payment-failure"
)

// Outcome is the write a permitted action implies. The caller applies
// it through the store's conditional update so the precondition is
// re-checked at commit time.
type Outcome struct {
	Status               *string
	PaymentStatus        *string
	AppendRenegotiation  bool
	ResolveRenegotiation bool
	// RequestPayment signals that a payment job must be enqueued.
	// Accepting never mutates status directly; the transition into
	// In_Progress is deferred until the payment outcome is known.
	RequestPayment bool
}

func strPtr(s string) *string { return &s }

// Transition decides whether actor may perform action on the commission
// in its current state, and what write follows. It is pure: no I/O, no
// clock, no mutation of the snapshot.
func Transition(commission *models.Commission, action Action, actor Actor) (Outcome, *models.ServiceError) {
	switch action {
	case ActionAccept:
		if actor.ID != commission.ArtistID {
			return Outcome{}, models.NewForbiddenError("only the assigned artist can accept this commission")
		}
		if commission.Status != models.StatusPendingApproval {
			return Outcome{}, models.NewConflictError("commission cannot be accepted in its current state")
		}
		return Outcome{RequestPayment: true}, nil

	case ActionDecline:
		if actor.ID != commission.ArtistID && actor.ID != commission.ClientID {
			return Outcome{}, models.NewForbiddenError("only the client or the assigned artist can decline this commission")
		}
		if commission.Status != models.StatusPendingApproval {
			return Outcome{}, models.NewConflictError("commission cannot be declined in its current state")
		}
		return Outcome{Status: strPtr(models.StatusCancelled)}, nil

	case ActionRenegotiate:
		if actor.ID != commission.ArtistID {
			return Outcome{}, models.NewForbiddenError("only the assigned artist can renegotiate this commission")
		}
		if commission.Status != models.StatusPendingApproval {
			return Outcome{}, models.NewConflictError("commission cannot be renegotiated in its current state")
		}
		if commission.PendingRenegotiation() >= 0 {
			return Outcome{}, models.NewConflictError("a renegotiation is already pending, wait for the client response")
		}
		return Outcome{AppendRenegotiation: true}, nil

	case ActionRespondAccept, ActionRespondDecline:
		if actor.ID != commission.ClientID {
			return Outcome{}, models.NewForbiddenError("only the client can respond to this commission")
		}
		if commission.Status != models.StatusPendingApproval {
			return Outcome{}, models.NewConflictError("commission is not in a state that allows a response")
		}
		out := Outcome{ResolveRenegotiation: commission.PendingRenegotiation() >= 0}
		if action == ActionRespondAccept {
			out.Status = strPtr(models.StatusInProgress)
		} else {
			out.Status = strPtr(models.StatusCancelled)
		}
		return out, nil

	case ActionComplete:
		if actor.ID != commission.ArtistID {
			return Outcome{}, models.NewForbiddenError("only the assigned artist can complete this commission")
		}
		if commission.Status != models.StatusInProgress {
			return Outcome{}, models.NewConflictError("commission is not in progress and cannot be completed")
		}
		return Outcome{Status: strPtr(models.StatusCompleted)}, nil

	case ActionPaymentSucceed:
		if commission.Status != models.StatusPendingApproval {
			return Outcome{}, models.NewConflictError("commission is no longer awaiting payment")
		}
		return Outcome{
			Status:        strPtr(models.StatusInProgress),
			PaymentStatus: strPtr(models.PaymentPaid),
		}, nil

	case ActionPaymentFail:
		if commission.Status != models.StatusPendingApproval {
			return Outcome{}, models.NewConflictError("commission is no longer awaiting payment")
		}
		// Status stays Pending_Approval so the commission survives a
		// declined payment and can be retried or declined.
		return Outcome{PaymentStatus: strPtr(models.PaymentFailed)}, nil
	}

	return Outcome{}, models.NewValidationError("unknown commission action")
}

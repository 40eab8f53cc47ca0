package controllers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atelio-app/atelio_backend/middleware"
	"github.com/atelio-app/atelio_backend/models"
	"github.com/atelio-app/atelio_backend/queue"
	"github.com/atelio-app/atelio_backend/repositories"
	"github.com/atelio-app/atelio_backend/services"
)

// CommissionController handles commission-related API endpoints. Every
// state-changing handler runs the state machine against a fresh
// snapshot and persists through the store's conditional update, so the
// precondition is re-checked at commit time.
type CommissionController struct {
	store  repositories.CommissionStore
	broker queue.Broker
}

// NewCommissionController creates a new commission controller
func NewCommissionController(store repositories.CommissionStore, broker queue.Broker) *CommissionController {
	return &CommissionController{store: store, broker: broker}
}

// actorFromToken builds the acting identity from the verified JWT
// claims set by the middleware.
func actorFromToken(ctx echo.Context) (services.Actor, error) {
	claims := middleware.GetUserFromToken(ctx)
	if claims == nil {
		return services.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return services.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "Invalid user ID in token")
	}
	return services.Actor{ID: id, Role: claims.UserType}, nil
}

// respondServiceError maps the closed error kinds to transport codes.
// This is the only place HTTP semantics touch the error taxonomy.
func respondServiceError(ctx echo.Context, serviceErr *models.ServiceError) error {
	status := http.StatusInternalServerError
	message := serviceErr.Message

	switch serviceErr.Kind {
	case models.ErrValidation, models.ErrConflict:
		status = http.StatusBadRequest
	case models.ErrForbidden:
		status = http.StatusForbidden
	case models.ErrNotFound:
		status = http.StatusNotFound
	case models.ErrInfrastructure:
		log.Printf("Infrastructure error: %v", serviceErr)
		message = "Something went wrong, please try again later"
	}

	return ctx.JSON(status, models.Response{
		Status:  status,
		Message: message,
	})
}

func commissionIDParam(ctx echo.Context) (primitive.ObjectID, *models.ServiceError) {
	id, err := primitive.ObjectIDFromHex(ctx.Param("id"))
	if err != nil {
		return primitive.NilObjectID, models.NewValidationError("Invalid commission ID")
	}
	return id, nil
}

// fetch loads a commission, translating absence into a not-found error.
func (c *CommissionController) fetch(ctx echo.Context, id primitive.ObjectID) (*models.Commission, *models.ServiceError) {
	commission, err := c.store.FindByID(ctx.Request().Context(), id)
	if err != nil {
		return nil, models.NewInfrastructureError("failed to load commission", err)
	}
	if commission == nil {
		return nil, models.NewNotFoundError("Commission not found")
	}
	return commission, nil
}

// CreateCommission handles a client's new commission request
func (c *CommissionController) CreateCommission(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}
	if actor.Role != services.RoleClient {
		return respondServiceError(ctx, models.NewForbiddenError("Only clients can create commissions"))
	}

	var request models.CreateCommissionRequest
	if err := ctx.Bind(&request); err != nil {
		return respondServiceError(ctx, models.NewValidationError("Invalid request"))
	}
	if err := ctx.Validate(&request); err != nil {
		return respondServiceError(ctx, models.NewValidationError("Please provide all required fields"))
	}
	if request.DueDate.Before(time.Now().Truncate(24 * time.Hour)) {
		return respondServiceError(ctx, models.NewValidationError("Due date cannot be in the past"))
	}

	artistID, idErr := primitive.ObjectIDFromHex(request.ArtistID)
	if idErr != nil {
		return respondServiceError(ctx, models.NewValidationError("Invalid artist ID"))
	}

	reqCtx := ctx.Request().Context()
	existing, findErr := c.store.FindDuplicate(reqCtx, actor.ID, artistID, request.Description)
	if findErr != nil {
		return respondServiceError(ctx, models.NewInfrastructureError("failed to check for duplicates", findErr))
	}
	if existing != nil {
		return respondServiceError(ctx, models.NewConflictError("A similar commission request already exists"))
	}

	commission := &models.Commission{
		ClientID:    actor.ID,
		ArtistID:    artistID,
		Description: request.Description,
		Budget:      request.Budget,
		DueDate:     request.DueDate,
	}
	if createErr := c.store.Create(reqCtx, commission); createErr != nil {
		return respondServiceError(ctx, models.NewInfrastructureError("failed to create commission", createErr))
	}

	return ctx.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Commission created successfully",
		Data:    commission,
	})
}

// GetCommission returns a single commission to its owners or an admin
func (c *CommissionController) GetCommission(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}

	id, serviceErr := commissionIDParam(ctx)
	if serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	commission, serviceErr := c.fetch(ctx, id)
	if serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	if actor.Role != services.RoleAdmin && actor.ID != commission.ClientID && actor.ID != commission.ArtistID {
		return respondServiceError(ctx, models.NewForbiddenError("You are not a party to this commission"))
	}

	return ctx.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission retrieved successfully",
		Data:    commission,
	})
}

// GetMyCommissions returns the authenticated client's commissions
func (c *CommissionController) GetMyCommissions(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}

	commissions, findErr := c.store.FindByClient(ctx.Request().Context(), actor.ID)
	if findErr != nil {
		return respondServiceError(ctx, models.NewInfrastructureError("failed to load commissions", findErr))
	}

	return ctx.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: fmt.Sprintf("Found %d commissions", len(commissions)),
		Data:    commissions,
	})
}

// GetAssignedCommissions returns the authenticated artist's commissions
func (c *CommissionController) GetAssignedCommissions(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}

	commissions, findErr := c.store.FindByArtist(ctx.Request().Context(), actor.ID)
	if findErr != nil {
		return respondServiceError(ctx, models.NewInfrastructureError("failed to load commissions", findErr))
	}

	return ctx.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: fmt.Sprintf("Found %d commissions", len(commissions)),
		Data:    commissions,
	})
}

// ListCommissions returns every commission (admin only)
func (c *CommissionController) ListCommissions(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}
	if actor.Role != services.RoleAdmin {
		return respondServiceError(ctx, models.NewForbiddenError("Admin access required"))
	}

	commissions, findErr := c.store.FindAll(ctx.Request().Context())
	if findErr != nil {
		return respondServiceError(ctx, models.NewInfrastructureError("failed to load commissions", findErr))
	}

	return ctx.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: fmt.Sprintf("Found %d commissions", len(commissions)),
		Data:    commissions,
	})
}

// DeleteCommission removes a commission (admin purge only)
func (c *CommissionController) DeleteCommission(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}
	if actor.Role != services.RoleAdmin {
		return respondServiceError(ctx, models.NewForbiddenError("Admin access required"))
	}

	id, serviceErr := commissionIDParam(ctx)
	if serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	deleted, delErr := c.store.Delete(ctx.Request().Context(), id)
	if delErr != nil {
		return respondServiceError(ctx, models.NewInfrastructureError("failed to delete commission", delErr))
	}
	if !deleted {
		return respondServiceError(ctx, models.NewNotFoundError("Commission not found"))
	}

	return ctx.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission deleted successfully",
	})
}

// AcceptCommission validates the artist's acceptance and enqueues a
// payment job. It deliberately does NOT mutate the commission: the
// transition into In_Progress happens only when the payment worker
// learns the capture outcome. The caller gets an immediate
// "processing initiated" response and observes the settled state later.
func (c *CommissionController) AcceptCommission(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}

	id, serviceErr := commissionIDParam(ctx)
	if serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	commission, serviceErr := c.fetch(ctx, id)
	if serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	// Fail fast without enqueueing when the action is invalid
	if _, serviceErr := services.Transition(commission, services.ActionAccept, actor); serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	jobID, enqErr := c.broker.Enqueue(ctx.Request().Context(), models.PaymentQueue, models.JobProcessPayment, models.PaymentJobData{
		CommissionID: commission.ID.Hex(),
		ArtistID:     actor.ID.Hex(),
	})
	if enqErr != nil {
		return respondServiceError(ctx, models.NewInfrastructureError("failed to enqueue payment job", enqErr))
	}

	return ctx.JSON(http.StatusAccepted, models.Response{
		Status:  http.StatusAccepted,
		Message: "Commission accepted, payment processing initiated",
		Data: map[string]interface{}{
			"commissionId": commission.ID.Hex(),
			"paymentJobId": jobID,
		},
	})
}

// DeclineCommission cancels a pending commission, by the artist or the
// client.
func (c *CommissionController) DeclineCommission(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}

	updated, serviceErr := c.applyAction(ctx, services.ActionDecline, actor, nil)
	if serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	c.enqueueNotification(ctx, models.JobDeclineCommission, updated.ArtistID,
		"Commission declined",
		fmt.Sprintf("Commission %s has been declined and cancelled.", updated.ID.Hex()))

	return ctx.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission declined successfully",
		Data:    updated,
	})
}

// RenegotiateCommission records an artist's renegotiation proposal
func (c *CommissionController) RenegotiateCommission(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}

	var request models.RenegotiateRequest
	if err := ctx.Bind(&request); err != nil {
		return respondServiceError(ctx, models.NewValidationError("Invalid request"))
	}
	if err := ctx.Validate(&request); err != nil {
		return respondServiceError(ctx, models.NewValidationError("Renegotiation message is required"))
	}

	renegotiation := &models.Renegotiation{
		Message:   request.Message,
		Budget:    request.NewBudget,
		DueDate:   request.NewDueDate,
		CreatedAt: time.Now(),
	}

	updated, serviceErr := c.applyAction(ctx, services.ActionRenegotiate, actor, renegotiation)
	if serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	c.enqueueNotification(ctx, models.JobRenegotiateCommission, updated.ClientID,
		"Renegotiation proposed",
		fmt.Sprintf("The artist proposed new terms for commission %s: %s", updated.ID.Hex(), request.Message))

	return ctx.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Renegotiation proposal sent successfully",
		Data:    updated,
	})
}

// RespondToCommission lets the client accept or decline a pending
// commission, resolving any open renegotiation along the way
func (c *CommissionController) RespondToCommission(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}

	var request models.RespondRequest
	if err := ctx.Bind(&request); err != nil {
		return respondServiceError(ctx, models.NewValidationError("Invalid request"))
	}
	if err := ctx.Validate(&request); err != nil {
		return respondServiceError(ctx, models.NewValidationError("Action must be either 'accept' or 'decline'"))
	}

	action := services.ActionRespondAccept
	message := "Commission accepted and now in progress"
	if request.Action == "decline" {
		action = services.ActionRespondDecline
		message = "Commission declined, commission cancelled"
	}

	updated, serviceErr := c.applyAction(ctx, action, actor, nil)
	if serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	return ctx.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: message,
		Data:    updated,
	})
}

// CompleteCommission marks an in-progress commission as done
func (c *CommissionController) CompleteCommission(ctx echo.Context) error {
	actor, err := actorFromToken(ctx)
	if err != nil {
		return err
	}

	updated, serviceErr := c.applyAction(ctx, services.ActionComplete, actor, nil)
	if serviceErr != nil {
		return respondServiceError(ctx, serviceErr)
	}

	c.enqueueNotification(ctx, models.JobCompleteCommission, updated.ClientID,
		"Commission completed",
		fmt.Sprintf("Your commission %s has been completed by the artist.", updated.ID.Hex()))

	return ctx.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission completed successfully",
		Data:    updated,
	})
}

// applyAction runs the state machine on a fresh snapshot and persists
// the outcome with a conditional write. A write that misses because the
// status moved concurrently comes back as a conflict, never a silent
// overwrite.
func (c *CommissionController) applyAction(ctx echo.Context, action services.Action, actor services.Actor, renegotiation *models.Renegotiation) (*models.Commission, *models.ServiceError) {
	id, serviceErr := commissionIDParam(ctx)
	if serviceErr != nil {
		return nil, serviceErr
	}

	commission, serviceErr := c.fetch(ctx, id)
	if serviceErr != nil {
		return nil, serviceErr
	}

	outcome, serviceErr := services.Transition(commission, action, actor)
	if serviceErr != nil {
		return nil, serviceErr
	}

	change := repositories.CommissionChange{
		Status:               outcome.Status,
		PaymentStatus:        outcome.PaymentStatus,
		ResolveRenegotiation: outcome.ResolveRenegotiation,
	}
	if outcome.AppendRenegotiation {
		change.AppendRenegotiation = renegotiation
	}

	reqCtx := ctx.Request().Context()
	updated, err := c.store.ApplyTransition(reqCtx, commission.ID, commission.Status, change)
	if err != nil {
		return nil, models.NewInfrastructureError("failed to persist commission transition", err)
	}
	if updated == nil {
		return nil, models.NewConflictError("Commission changed state, please retry")
	}
	return updated, nil
}

// enqueueNotification queues a best-effort email job. Failures are
// logged and swallowed: the business operation already committed.
func (c *CommissionController) enqueueNotification(ctx echo.Context, jobName string, recipientID primitive.ObjectID, subject, body string) {
	message := models.NotificationJobData{
		To:      fmt.Sprintf("user-%s@users.atelio.app", recipientID.Hex()),
		Subject: subject,
		Body:    body,
	}
	if _, err := c.broker.Enqueue(ctx.Request().Context(), models.NotificationQueue, jobName, message); err != nil {
		log.Printf("Failed to enqueue %s notification: %v", jobName, err)
	}
}

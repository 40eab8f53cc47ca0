package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Commission statuses
const (
	StatusPendingApproval = "Pending_Approval"
	StatusInProgress      = "In_Progress"
	StatusCompleted       = "Completed"
	StatusCancelled       = "Cancelled"
)

// Payment statuses
const (
	PaymentPending = "Pending"
	PaymentPaid    = "Paid"
	PaymentFailed  = "Failed"
)

// Renegotiation is an artist-proposed amendment to budget/due date
// awaiting client response. Resolution is tracked per entry so a
// resolved proposal never blocks a later one.
type Renegotiation struct {
	Message    string     `json:"message" bson:"message"`
	Budget     *float64   `json:"budget,omitempty" bson:"budget,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	Resolved   bool       `json:"resolved" bson:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" bson:"createdAt"`
}

// Commission model
type Commission struct {
	ID             primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	ClientID       primitive.ObjectID `json:"clientId" bson:"clientId"`
	ArtistID       primitive.ObjectID `json:"artistId" bson:"artistId"`
	Description    string             `json:"description" bson:"description"`
	Budget         float64            `json:"budget" bson:"budget"`
	DueDate        time.Time          `json:"dueDate" bson:"dueDate"`
	Status         string             `json:"status" bson:"status"`               // "Pending_Approval", "In_Progress", "Completed", "Cancelled"
	PaymentStatus  string             `json:"paymentStatus" bson:"paymentStatus"` // "Pending", "Paid", "Failed"
	Renegotiations []Renegotiation    `json:"renegotiations" bson:"renegotiations"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// PendingRenegotiation returns the index of the unresolved renegotiation,
// or -1 when every proposal has been resolved.
func (c *Commission) PendingRenegotiation() int {
	for i := range c.Renegotiations {
		if !c.Renegotiations[i].Resolved {
			return i
		}
	}
	return -1
}

// Terminal reports whether the commission can never be mutated again.
func (c *Commission) Terminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusCancelled
}

// CreateCommissionRequest model
type CreateCommissionRequest struct {
	ArtistID    string    `json:"artistId" validate:"required"`
	Description string    `json:"description" validate:"required"`
	Budget      float64   `json:"budget" validate:"required,gt=0"`
	DueDate     time.Time `json:"dueDate" validate:"required"`
}

// RenegotiateRequest model for artist renegotiation proposals
type RenegotiateRequest struct {
	Message    string     `json:"message" validate:"required"`
	NewBudget  *float64   `json:"newBudget,omitempty" validate:"omitempty,gt=0"`
	NewDueDate *time.Time `json:"newDueDate,omitempty"`
}

// RespondRequest model for a client responding to a pending commission
type RespondRequest struct {
	Action string `json:"action" validate:"required,oneof=accept decline"`
}

// Response model
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

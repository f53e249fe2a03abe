package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RegistrationPending   = "pending"
	RegistrationActive    = "active"
	RegistrationCompleted = "completed"
)

type RegistrationForm struct {
	PreferredDate       string `bson:"preferredDate" json:"preferredDate"`
	PreferredTime       string `bson:"preferredTime" json:"preferredTime"`
	SpecialRequirements string `bson:"specialRequirements" json:"specialRequirements"`
	PaymentMethod       string `bson:"paymentMethod" json:"paymentMethod"`
}

// RegisteredService is one user's enrollment in a catalog Service.
type RegisteredService struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ServiceID        primitive.ObjectID `bson:"serviceId" json:"serviceId"`
	Name             string             `bson:"name" json:"name"`
	Description      string             `bson:"description" json:"description"`
	Duration         string             `bson:"duration" json:"duration"`
	Category         string             `bson:"category" json:"category"`
	Features         []string           `bson:"features" json:"features"`
	Technologies     []string           `bson:"technologies" json:"technologies"`
	UseCases         []string           `bson:"useCases" json:"useCases"`
	IconName         string             `bson:"iconName" json:"iconName"`
	Status           string             `bson:"status" json:"status"`
	RegistrationDate time.Time          `bson:"registrationDate" json:"registrationDate"`
	UserEmail        string             `bson:"userEmail" json:"userEmail"`
	FormData         RegistrationForm   `bson:"formData" json:"formData"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (r *RegisteredService) Validate() error {
	var c checker
	if r.ServiceID.IsZero() {
		c.add("serviceId", "is required")
	}
	c.required("name", r.Name)
	c.email("userEmail", r.UserEmail)
	c.oneOf("status", r.Status, RegistrationPending, RegistrationActive, RegistrationCompleted)
	return c.errs.OrNil()
}

// Owner is the email used for owner-or-admin checks.
func (r *RegisteredService) Owner() string { return r.UserEmail }

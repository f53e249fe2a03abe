package models

import (
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ServiceActive   = "active"
	ServiceInactive = "inactive"
	ServiceDraft    = "draft"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type SubCategory struct {
	Name string `bson:"name" json:"name"`
}

type Pricing struct {
	Base       float64 `bson:"base" json:"base"`
	Premium    float64 `bson:"premium" json:"premium"`
	Enterprise float64 `bson:"enterprise" json:"enterprise"`
}

type ScheduleSlot struct {
	DayOfWeek int    `bson:"dayOfWeek" json:"dayOfWeek"`
	StartTime string `bson:"startTime" json:"startTime"`
	EndTime   string `bson:"endTime" json:"endTime"`
}

type ServiceAvailability struct {
	Regions  []string       `bson:"regions" json:"regions"`
	Schedule []ScheduleSlot `bson:"schedule" json:"schedule"`
}

type ServiceMetrics struct {
	Views    int     `bson:"views" json:"views"`
	Bookings int     `bson:"bookings" json:"bookings"`
	Revenue  float64 `bson:"revenue" json:"revenue"`
	Rating   float64 `bson:"rating" json:"rating"`
}

// Service is a catalog offering.
type Service struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name          string              `bson:"name" json:"name"`
	Description   string              `bson:"description" json:"description"`
	Category      string              `bson:"category" json:"category"`
	SubCategories []SubCategory       `bson:"subCategories" json:"subCategories"`
	Pricing       Pricing             `bson:"pricing" json:"pricing"`
	Availability  ServiceAvailability `bson:"availability" json:"availability"`
	Metrics       ServiceMetrics      `bson:"metrics" json:"metrics"`
	Status        string              `bson:"status" json:"status"`
	CreatedAt     time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time           `bson:"updatedAt" json:"updatedAt"`
}

func (s *Service) Validate() error {
	var c checker
	c.required("name", s.Name)
	c.required("description", s.Description)
	c.required("category", s.Category)
	c.nonNegative("pricing.base", s.Pricing.Base)
	c.nonNegative("pricing.premium", s.Pricing.Premium)
	c.nonNegative("pricing.enterprise", s.Pricing.Enterprise)
	for i, slot := range s.Availability.Schedule {
		field := fmt.Sprintf("availability.schedule[%d]", i)
		if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
			c.add(field+".dayOfWeek", "must be between 0 and 6")
		}
		if !clockPattern.MatchString(slot.StartTime) {
			c.add(field+".startTime", "must be HH:MM")
		}
		if !clockPattern.MatchString(slot.EndTime) {
			c.add(field+".endTime", "must be HH:MM")
		}
	}
	c.between("metrics.rating", s.Metrics.Rating, 0, 5)
	c.oneOf("status", s.Status, ServiceActive, ServiceInactive, ServiceDraft)
	return c.errs.OrNil()
}

package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ProjectCompleted  = "completed"
	ProjectInProgress = "in-progress"
	ProjectCancelled  = "cancelled"

	AvailabilityAvailable   = "available"
	AvailabilityBusy        = "busy"
	AvailabilityUnavailable = "unavailable"
)

type Skill struct {
	Name  string `bson:"name" json:"name"`
	Level int    `bson:"level" json:"level"`
}

type Project struct {
	Name         string  `bson:"name" json:"name"`
	Status       string  `bson:"status" json:"status"`
	ClientRating float64 `bson:"clientRating" json:"clientRating"`
}

type FreelancerAvailability struct {
	Status        string     `bson:"status" json:"status"`
	NextAvailable *time.Time `bson:"nextAvailable,omitempty" json:"nextAvailable,omitempty"`
}

type FreelancerMetrics struct {
	CompletedProjects int     `bson:"completedProjects" json:"completedProjects"`
	TotalEarnings     float64 `bson:"totalEarnings" json:"totalEarnings"`
	AvgResponseTime   float64 `bson:"avgResponseTime" json:"avgResponseTime"`
}

// Freelancer is a service provider with its own credential pool, separate from User.
type Freelancer struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	Email        string                 `bson:"email" json:"email"`
	PasswordHash string                 `bson:"password,omitempty" json:"-"`
	FirstName    string                 `bson:"firstName" json:"firstName"`
	LastName     string                 `bson:"lastName" json:"lastName"`
	Title        string                 `bson:"title" json:"title"`
	Bio          string                 `bson:"bio" json:"bio"`
	Phone        string                 `bson:"phone" json:"phone"`
	Location     string                 `bson:"location" json:"location"`
	Avatar       string                 `bson:"avatar" json:"avatar"`
	Skills       []Skill                `bson:"skills" json:"skills"`
	Projects     []Project              `bson:"projects" json:"projects"`
	HourlyRate   float64                `bson:"hourlyRate" json:"hourlyRate"`
	Availability FreelancerAvailability `bson:"availability" json:"availability"`
	Metrics      FreelancerMetrics      `bson:"metrics" json:"metrics"`
	Rating       float64                `bson:"rating" json:"rating"`
	IsActive     bool                   `bson:"isActive" json:"isActive"`
	Role         Role                   `bson:"role" json:"role"`
	LastLogin    *time.Time             `bson:"lastLogin,omitempty" json:"lastLogin"`
	CreatedAt    time.Time              `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time              `bson:"updatedAt" json:"updatedAt"`
}

func (f *Freelancer) Validate() error {
	var c checker
	c.email("email", f.Email)
	c.required("firstName", f.FirstName)
	for i, s := range f.Skills {
		field := fmt.Sprintf("skills[%d]", i)
		c.required(field+".name", s.Name)
		if s.Level < 0 || s.Level > 100 {
			c.add(field+".level", "must be an integer between 0 and 100")
		}
	}
	for i, p := range f.Projects {
		field := fmt.Sprintf("projects[%d]", i)
		c.required(field+".name", p.Name)
		c.oneOf(field+".status", p.Status, ProjectCompleted, ProjectInProgress, ProjectCancelled)
		c.between(field+".clientRating", p.ClientRating, 0, 5)
	}
	c.nonNegative("hourlyRate", f.HourlyRate)
	if f.Availability.Status != "" {
		c.oneOf("availability.status", f.Availability.Status, AvailabilityAvailable, AvailabilityBusy, AvailabilityUnavailable)
	}
	c.between("rating", f.Rating, 0, 5)
	c.nonNegative("metrics.totalEarnings", f.Metrics.TotalEarnings)
	if f.Metrics.CompletedProjects < 0 {
		c.add("metrics.completedProjects", "must not be negative")
	}
	if f.Role != RoleFreelancer {
		c.add("role", "must be freelancer")
	}
	return c.errs.OrNil()
}

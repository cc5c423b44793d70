package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entitlement grants a user access to a purchased course.
type Entitlement struct {
	UserID      string     `json:"user_id"`
	CourseID    string     `json:"course_id"`
	PurchasedAt time.Time  `json:"purchased_at"`
	Completed   bool       `json:"completed"`
	Progress    int        `json:"progress"`
	AccessUntil *time.Time `json:"access_until,omitempty"`
}

// NewEntitlement returns a fresh entitlement with zero progress.
func NewEntitlement(userID, courseID string, purchasedAt time.Time) Entitlement {
	return Entitlement{
		UserID:      userID,
		CourseID:    courseID,
		PurchasedAt: purchasedAt.UTC(),
	}
}

// Course is the catalog view needed for pricing a purchase.
type Course struct {
	ID            string
	Title         string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	Published     bool
}

// EffectivePrice returns the discount price when it undercuts the list price.
func (c Course) EffectivePrice() decimal.Decimal {
	if c.DiscountPrice != nil && c.DiscountPrice.IsPositive() && c.DiscountPrice.LessThan(c.Price) {
		return *c.DiscountPrice
	}
	return c.Price
}

// User is the directory view of an account.
type User struct {
	ID     string
	Name   string
	Email  string
	Role   Role
	Active bool
}

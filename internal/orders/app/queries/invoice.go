package queries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/shopspring/decimal"
	"go.openly.dev/pointy"
)

// Invoice is the printable summary of an order.
type Invoice struct {
	ID            string               `json:"id"`
	Reference     string               `json:"reference"`
	Date          time.Time            `json:"date"`
	Customer      InvoiceCustomer      `json:"customer"`
	Items         []InvoiceItem        `json:"items"`
	Total         decimal.Decimal      `json:"total"`
	Currency      string               `json:"currency"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

type InvoiceCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type InvoiceItem struct {
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

// GetInvoiceQueryHandler builds invoices from the order, catalog and user directory.
type GetInvoiceQueryHandler struct {
	orders  *GetOrderQueryHandler
	catalog ports.Catalog
	users   ports.UserDirectory
}

func NewGetInvoiceQueryHandler(repo ports.OrderRepository, catalog ports.Catalog, users ports.UserDirectory) *GetInvoiceQueryHandler {
	return &GetInvoiceQueryHandler{
		orders:  NewGetOrderQueryHandler(repo),
		catalog: catalog,
		users:   users,
	}
}

func (h *GetInvoiceQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*Invoice, error) {
	order, err := h.orders.Handle(ctx, query)
	if err != nil {
		return nil, err
	}

	description := order.CourseID
	course, err := h.catalog.GetCourse(ctx, order.CourseID)
	switch {
	case err == nil:
		description = course.Title
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("load course %s: %w", order.CourseID, err)
	}

	var customer InvoiceCustomer
	user, err := h.users.GetUser(ctx, order.UserID)
	switch {
	case err == nil:
		customer = InvoiceCustomer{Name: user.Name, Email: user.Email}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("load user %s: %w", order.UserID, err)
	}

	return &Invoice{
		ID:        order.ID,
		Reference: pointy.StringValue(order.Reference, order.ID),
		Date:      order.CreatedAt,
		Customer:  customer,
		Items: []InvoiceItem{{
			Description: description,
			Price:       order.Amount,
			Quantity:    1,
			Total:       order.Amount,
		}},
		Total:         order.Amount,
		Currency:      order.Currency,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
	}, nil
}

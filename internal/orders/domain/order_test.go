package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/shopspring/decimal"
)

func TestOrderValidate(t *testing.T) {
	valid := func() domain.Order {
		return domain.Order{
			ID:            "test-id",
			UserID:        "user-1",
			CourseID:      "course-1",
			Amount:        decimal.RequireFromString("49.00"),
			Currency:      "eur",
			Status:        domain.StatusPending,
			PaymentMethod: domain.MethodCard,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(o *domain.Order)
		wantErr bool
	}{
		{name: "valid order", mutate: func(o *domain.Order) {}},
		{name: "missing user", mutate: func(o *domain.Order) { o.UserID = "  " }, wantErr: true},
		{name: "missing course", mutate: func(o *domain.Order) { o.CourseID = "" }, wantErr: true},
		{name: "zero amount", mutate: func(o *domain.Order) { o.Amount = decimal.Zero }, wantErr: true},
		{name: "negative amount", mutate: func(o *domain.Order) { o.Amount = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "unknown method", mutate: func(o *domain.Order) { o.PaymentMethod = "crypto" }, wantErr: true},
		{name: "unknown status", mutate: func(o *domain.Order) { o.Status = "failed" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := valid()
			tt.mutate(&order)

			err := order.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[domain.OrderStatus][]domain.OrderStatus{
		domain.StatusPending:         {domain.StatusAwaitingPayment, domain.StatusProcessing, domain.StatusCompleted, domain.StatusCancelled},
		domain.StatusAwaitingPayment: {domain.StatusProcessing, domain.StatusCompleted, domain.StatusCancelled},
		domain.StatusProcessing:      {domain.StatusCompleted, domain.StatusCancelled},
		domain.StatusCompleted:       {domain.StatusRefunded},
	}
	all := []domain.OrderStatus{
		domain.StatusPending, domain.StatusAwaitingPayment, domain.StatusProcessing,
		domain.StatusCompleted, domain.StatusCancelled, domain.StatusRefunded,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			if got := domain.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestOrderIsTerminal(t *testing.T) {
	tests := []struct {
		status   domain.OrderStatus
		terminal bool
	}{
		{domain.StatusPending, false},
		{domain.StatusAwaitingPayment, false},
		{domain.StatusProcessing, false},
		{domain.StatusCompleted, true},
		{domain.StatusCancelled, true},
		{domain.StatusRefunded, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			order := domain.Order{Status: tt.status}
			if got := order.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := domain.ParseOrderStatus(" Completed ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status != domain.StatusCompleted {
		t.Errorf("expected %s, got %s", domain.StatusCompleted, status)
	}

	if _, err := domain.ParseOrderStatus("shipped"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestOrderPatchApplyIsWriteOnce(t *testing.T) {
	first := "Manually confirmed"
	second := "overwritten"
	order := domain.Order{TransactionDetails: &first}

	domain.OrderPatch{TransactionDetails: &second, RefundReason: &second}.Apply(&order)

	if *order.TransactionDetails != first {
		t.Errorf("expected transaction details to stay %q, got %q", first, *order.TransactionDetails)
	}
	if order.RefundReason == nil || *order.RefundReason != second {
		t.Errorf("expected refund reason to be set")
	}
}

func TestCourseEffectivePrice(t *testing.T) {
	discount := decimal.RequireFromString("29.00")
	higher := decimal.RequireFromString("99.00")

	tests := []struct {
		name   string
		course domain.Course
		want   string
	}{
		{"no discount", domain.Course{Price: decimal.RequireFromString("49.00")}, "49"},
		{"discount applies", domain.Course{Price: decimal.RequireFromString("49.00"), DiscountPrice: &discount}, "29"},
		{"discount above price ignored", domain.Course{Price: decimal.RequireFromString("49.00"), DiscountPrice: &higher}, "49"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.course.EffectivePrice(); !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("EffectivePrice() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMinorUnits(t *testing.T) {
	if got := domain.MinorUnits(decimal.RequireFromString("49.00")); got != 4900 {
		t.Errorf("expected 4900, got %d", got)
	}
	if got := domain.MinorUnits(decimal.RequireFromString("19.995")); got != 2000 {
		t.Errorf("expected 2000, got %d", got)
	}
}

func TestPrincipalCanAccess(t *testing.T) {
	order := domain.Order{UserID: "owner"}

	if !(domain.Principal{ID: "owner", Role: domain.RoleUser}).CanAccess(order) {
		t.Error("owner should access own order")
	}
	if (domain.Principal{ID: "other", Role: domain.RoleUser}).CanAccess(order) {
		t.Error("other user should not access order")
	}
	if !(domain.Principal{ID: "admin", Role: domain.ParseRole("ADMIN")}).CanAccess(order) {
		t.Error("admin should access any order")
	}
}

func TestProviderErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&domain.ProviderError{Provider: domain.MethodCard, Op: "refund", Retryable: true, Err: cause})

	if !errors.Is(err, cause) {
		t.Error("expected provider error to unwrap cause")
	}
	if !domain.IsProviderError(err) {
		t.Error("expected IsProviderError to detect provider error")
	}
}

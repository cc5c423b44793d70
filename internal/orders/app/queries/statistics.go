package queries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
	"github.com/K-mel/servicemasterfr/internal/orders/ports"
	"github.com/shopspring/decimal"
)

const (
	Period7Days  = "7days"
	Period30Days = "30days"
	Period90Days = "90days"
	PeriodYear   = "year"

	topCoursesLimit = 5
)

// Statistics summarizes sales for the admin dashboard.
// Totals cover all completed orders; breakdowns cover the requested period.
type Statistics struct {
	TotalRevenue         decimal.Decimal `json:"total_revenue"`
	TotalOrders          int             `json:"total_orders"`
	AverageOrderValue    decimal.Decimal `json:"average_order_value"`
	SalesByDay           []DailySales    `json:"sales_by_period"`
	SalesByPaymentMethod []MethodSales   `json:"sales_by_payment_method"`
	TopCourses           []CourseSales   `json:"top_courses"`
	ConversionRate       float64         `json:"conversion_rate"`
	Period               string          `json:"period"`
}

type DailySales struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
}

type MethodSales struct {
	Method  domain.PaymentMethod `json:"payment_method"`
	Revenue decimal.Decimal      `json:"revenue"`
	Count   int                  `json:"count"`
}

type CourseSales struct {
	CourseID string          `json:"course_id"`
	Title    string          `json:"title"`
	Revenue  decimal.Decimal `json:"revenue"`
	Count    int             `json:"count"`
}

// StatisticsQuery requests statistics for a period; unknown periods fall back to 30 days.
type StatisticsQuery struct {
	Principal domain.Principal
	Period    string
}

type StatisticsQueryHandler struct {
	reader  ports.StatisticsReader
	catalog ports.Catalog
	users   ports.UserDirectory
	now     func() time.Time
}

func NewStatisticsQueryHandler(reader ports.StatisticsReader, catalog ports.Catalog, users ports.UserDirectory) *StatisticsQueryHandler {
	return &StatisticsQueryHandler{
		reader:  reader,
		catalog: catalog,
		users:   users,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// periodStart resolves a period name to its start time and canonical name.
func periodStart(now time.Time, period string) (time.Time, string) {
	switch period {
	case Period7Days:
		return now.AddDate(0, 0, -7), period
	case Period90Days:
		return now.AddDate(0, 0, -90), period
	case PeriodYear:
		return now.AddDate(-1, 0, 0), period
	default:
		return now.AddDate(0, 0, -30), Period30Days
	}
}

func (h *StatisticsQueryHandler) Handle(ctx context.Context, query StatisticsQuery) (*Statistics, error) {
	if !query.Principal.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if !query.Principal.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", domain.ErrUnauthorized)
	}

	since, period := periodStart(h.now(), query.Period)

	totals, err := h.reader.CompletedTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load completed totals: %w", err)
	}
	orders, err := h.reader.ListCompletedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load completed orders: %w", err)
	}
	users, err := h.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	stats := &Statistics{
		TotalRevenue:      totals.Revenue,
		TotalOrders:       totals.Count,
		AverageOrderValue: decimal.Zero,
		Period:            period,
	}
	if totals.Count > 0 {
		stats.AverageOrderValue = totals.Revenue.Div(decimal.NewFromInt(int64(totals.Count))).Round(2)
	}
	if users > 0 {
		stats.ConversionRate = float64(totals.Count) / float64(users) * 100
	}

	stats.SalesByDay = salesByDay(orders)
	stats.SalesByPaymentMethod = salesByMethod(orders)
	stats.TopCourses, err = h.topCourses(ctx, orders)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func salesByDay(orders []domain.Order) []DailySales {
	index := map[string]int{}
	result := []DailySales{}
	for _, order := range orders {
		day := order.CreatedAt.UTC().Format(time.DateOnly)
		i, ok := index[day]
		if !ok {
			i = len(result)
			index[day] = i
			result = append(result, DailySales{Date: day, Revenue: decimal.Zero})
		}
		result[i].Revenue = result[i].Revenue.Add(order.Amount)
		result[i].Count++
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}

func salesByMethod(orders []domain.Order) []MethodSales {
	index := map[domain.PaymentMethod]int{}
	result := []MethodSales{}
	for _, order := range orders {
		i, ok := index[order.PaymentMethod]
		if !ok {
			i = len(result)
			index[order.PaymentMethod] = i
			result = append(result, MethodSales{Method: order.PaymentMethod, Revenue: decimal.Zero})
		}
		result[i].Revenue = result[i].Revenue.Add(order.Amount)
		result[i].Count++
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Method < result[j].Method })
	return result
}

func (h *StatisticsQueryHandler) topCourses(ctx context.Context, orders []domain.Order) ([]CourseSales, error) {
	index := map[string]int{}
	result := []CourseSales{}
	for _, order := range orders {
		i, ok := index[order.CourseID]
		if !ok {
			i = len(result)
			index[order.CourseID] = i
			result = append(result, CourseSales{CourseID: order.CourseID, Revenue: decimal.Zero})
		}
		result[i].Revenue = result[i].Revenue.Add(order.Amount)
		result[i].Count++
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].CourseID < result[j].CourseID
	})
	if len(result) > topCoursesLimit {
		result = result[:topCoursesLimit]
	}

	for i := range result {
		course, err := h.catalog.GetCourse(ctx, result[i].CourseID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load course %s: %w", result[i].CourseID, err)
		}
		result[i].Title = course.Title
	}
	return result, nil
}

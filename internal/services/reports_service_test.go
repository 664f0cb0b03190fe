package services

import (
	"context"
	"testing"

	"busline/internal/domain"
)

func TestSalesReportCountsPaidTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)

	paid := f.ticket(t, trip.ID, "A1")
	if _, err := f.tickets.ConfirmPayment(ctx, paid.ID); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	f.ticket(t, trip.ID, "A2")
	refunded := f.ticket(t, trip.ID, "A3")
	if _, err := f.tickets.ConfirmPayment(ctx, refunded.ID); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if _, err := f.tickets.Refund(ctx, refunded.ID); err != nil {
		t.Fatalf("Refund: %v", err)
	}

	svc := ReportsService{Routes: f.store, Trips: f.store, Tickets: f.store}
	rows, err := svc.SalesReport(ctx, SalesReportFilter{From: f.date, To: f.date})
	if err != nil {
		t.Fatalf("SalesReport returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	r := rows[0]
	if r.Sold != 1 || r.Pending != 1 || r.Refunded != 1 {
		t.Fatalf("unexpected counts %+v", r)
	}
	if r.Revenue != 1070 || r.Itbms != 70 || r.RouteName != "R1" {
		t.Fatalf("unexpected totals %+v", r)
	}

	rows, err = svc.SalesReport(ctx, SalesReportFilter{From: f.date, To: f.date, RouteID: f.route.ID + 100})
	if err != nil || len(rows) != 0 {
		t.Fatalf("route filter: rows=%d err=%v", len(rows), err)
	}
}

func TestSalesReportRejectsBadRange(t *testing.T) {
	f := newFixture(t)
	svc := ReportsService{Routes: f.store, Trips: f.store, Tickets: f.store}
	_, err := svc.SalesReport(context.Background(), SalesReportFilter{From: f.date, To: f.date.AddDate(0, 0, -1)})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = svc.SalesReport(context.Background(), SalesReportFilter{From: f.date, To: f.date.AddDate(0, 0, 40)})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

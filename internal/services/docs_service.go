package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"

	"github.com/phpdave11/gofpdf"
)

// DocsService renders per-ticket PDFs (e-ticket and receipt).
type DocsService struct {
	Tickets   TicketStore
	Trips     TripStore
	Routes    RouteStore
	Buses     BusRegistry
	RequestID string
	Loader    func(ctx context.Context, ticketID int64) (ticketDocData, error)
}

type ticketDocData struct {
	Ticket    models.Ticket
	RouteName string
	Origin    string
	Dest      string
	Departure time.Time
	Arrival   *time.Time
	BusPlate  string
}

func (s DocsService) GenerateETicket(ctx context.Context, ticketID int64) ([]byte, string, error) {
	data, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}
	if data.Ticket.Status == models.TicketCancelled || data.Ticket.Status == models.TicketRefunded {
		return nil, "", domain.ValidationError{Field: "ticket_id", Msg: fmt.Sprintf("ticket is %s", data.Ticket.Status)}
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "docs", "generate_eticket", fmt.Sprintf("ticket_id=%d", ticketID))
	return buildETicketPDF(data)
}

func (s DocsService) GenerateReceipt(ctx context.Context, ticketID int64) ([]byte, string, error) {
	data, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "docs", "generate_receipt", fmt.Sprintf("ticket_id=%d", ticketID))
	return buildReceiptPDF(data)
}

// QRImage returns the ticket's QR payload as a PNG.
func (s DocsService) QRImage(ctx context.Context, ticketID int64, size int) ([]byte, error) {
	t, err := s.Tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return utils.GenerateQRCode(t.QRCode, size)
}

func (s DocsService) load(ctx context.Context, ticketID int64) (ticketDocData, error) {
	if ticketID <= 0 {
		return ticketDocData{}, domain.ValidationError{Field: "ticket_id", Msg: "invalid id"}
	}
	if s.Loader != nil {
		return s.Loader(ctx, ticketID)
	}
	var out ticketDocData
	t, err := s.Tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return out, err
	}
	trip, err := s.Trips.GetTrip(ctx, t.TripID)
	if err != nil {
		return out, err
	}
	out.Ticket = t
	out.Departure = trip.DepartureTime
	out.Arrival = trip.ArrivalEstimate
	if r, err := s.Routes.GetRoute(ctx, trip.RouteID); err == nil {
		out.RouteName = r.Name
		out.Origin = r.Origin
		out.Dest = r.Destination
	}
	// the bus may have been swapped since the sale; print the current one
	if b, err := s.Buses.GetBus(ctx, trip.BusID); err == nil {
		out.BusPlate = b.Plate
	}
	return out, nil
}

func buildETicketPDF(d ticketDocData) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+d.Ticket.Code, false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	arrival := "-"
	if d.Arrival != nil {
		arrival = d.Arrival.UTC().Format("2006-01-02 15:04")
	}
	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Passenger  : %s", safe(d.Ticket.Passenger.Name, "-")),
		fmt.Sprintf("Document   : %s", safe(d.Ticket.Passenger.DocumentID, "-")),
		fmt.Sprintf("Route      : %s (%s -> %s)", safe(d.RouteName, "-"), safe(d.Origin, "-"), safe(d.Dest, "-")),
		fmt.Sprintf("Departure  : %s UTC", d.Departure.UTC().Format("2006-01-02 15:04")),
		fmt.Sprintf("Arrival    : %s", arrival),
		fmt.Sprintf("Bus        : %s", safe(d.BusPlate, "-")),
		fmt.Sprintf("Seat       : %s", safe(d.Ticket.SeatID, "-")),
		fmt.Sprintf("Ticket     : %s", d.Ticket.Code),
		fmt.Sprintf("Status     : %s", d.Ticket.Status),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}
	pdf.Ln(4)
	writePriceBreakdown(pdf, d.Ticket)

	png, err := utils.GenerateQRCode(d.Ticket.QRCode, 256)
	if err != nil {
		return nil, "", err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("qr", 140, 30, 50, 50, false, opts, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Valid for one passenger and one seat. Show the QR code at boarding.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("ETICKET_%s_%s.pdf", safeFilenamePart(d.Ticket.Code), safeFilenamePart(d.Ticket.SeatID))
	return buf.Bytes(), filename, nil
}

func buildReceiptPDF(d ticketDocData) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "RECEIPT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, "Ticket : "+d.Ticket.Code)
	pdf.Ln(7)
	pdf.Cell(0, 7, "Issued : "+d.Ticket.CreatedAt.UTC().Format("2006-01-02 15:04"))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Billed : "+safe(d.Ticket.Passenger.Name, "-"))
	pdf.Ln(10)

	desc := fmt.Sprintf("Bus fare %s -> %s (%s) seat %s",
		safe(d.Origin, "-"), safe(d.Dest, "-"),
		d.Departure.UTC().Format("2006-01-02 15:04"), safe(d.Ticket.SeatID, "-"))
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, desc, "", "", false)
	pdf.Ln(2)
	writePriceBreakdown(pdf, d.Ticket)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("RECEIPT_%s.pdf", safeFilenamePart(d.Ticket.Code))
	return buf.Bytes(), filename, nil
}

func writePriceBreakdown(pdf *gofpdf.Fpdf, t models.Ticket) {
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, "Fare   : "+utils.FormatMoney(t.Price))
	pdf.Ln(7)
	pdf.Cell(0, 7, "ITBMS  : "+utils.FormatMoney(t.Itbms))
	pdf.Ln(7)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Total  : "+utils.FormatMoney(t.TotalPrice))
	pdf.Ln(10)
}

func safe(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func safeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(s)
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

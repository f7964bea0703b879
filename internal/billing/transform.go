package billing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickshauling/ticketdrop/internal/ticket"
)

// Columns is the AXON B622 import layout. The billing system matches on
// position and name, so neither may change.
var Columns = [...]string{
	"Attachment",
	"Customer",
	"Location",
	"Start Date",
	"Reference",
	"Ticket#",
	"Truck#",
	"Operator",
	"Trailer#",
	"Product",
	"Actual Vol",
	"Product2",
	"From LSD",
	"To LSD",
	"Hours",
	"Charge",
	"Job Desc",
	"Company",
	"Status",
}

const (
	DefaultCompany  = "Rick's Oilfield Hauling"
	startDateLayout = "02-01-2006 15:04"
	attachmentFalse = "FALSE"
	statusCompleted = "Completed"
)

// Record is one billing row. Every value is already a string in its final
// export form.
type Record struct {
	Attachment string `json:"attachment"`
	Customer   string `json:"customer"`
	Location   string `json:"location"`
	StartDate  string `json:"start_date"`
	Reference  string `json:"reference"`
	Ticket     string `json:"ticket"`
	Truck      string `json:"truck"`
	Operator   string `json:"operator"`
	Trailer    string `json:"trailer"`
	Product    string `json:"product"`
	ActualVol  string `json:"actual_vol"`
	Product2   string `json:"product2"`
	FromLSD    string `json:"from_lsd"`
	ToLSD      string `json:"to_lsd"`
	Hours      string `json:"hours"`
	Charge     string `json:"charge"`
	JobDesc    string `json:"job_desc"`
	Company    string `json:"company"`
	Status     string `json:"status"`
}

// Values returns the record in Columns order.
func (r Record) Values() []string {
	return []string{
		r.Attachment, r.Customer, r.Location, r.StartDate, r.Reference,
		r.Ticket, r.Truck, r.Operator, r.Trailer, r.Product,
		r.ActualVol, r.Product2, r.FromLSD, r.ToLSD, r.Hours,
		r.Charge, r.JobDesc, r.Company, r.Status,
	}
}

// Transform maps a completed ticket onto a billing row. It never fails: a
// start date that does not parse is carried through as entered.
func Transform(t ticket.Ticket) Record {
	return Record{
		Attachment: attachmentFalse,
		Customer:   t.Customer,
		Location:   t.Pickup + " to " + t.Delivery,
		StartDate:  FormatStartDate(t.ArriveLoad).String(),
		Ticket:     t.Number,
		Truck:      t.Truck,
		Operator:   FormatOperator(t.Driver),
		Trailer:    t.Trailer,
		Product:    t.Product,
		ActualVol:  fixed2(t.ActualVolume),
		FromLSD:    t.Pickup,
		ToLSD:      t.Delivery,
		Hours:      fixed2(t.Hours),
		JobDesc:    t.Product + " - " + t.Customer,
		Company:    DefaultCompany,
		Status:     statusCompleted,
	}
}

// FormatOperator turns "First Last" into "Last, First". Names with fewer
// than two words come back unchanged.
func FormatOperator(name string) string {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return name
	}
	return parts[len(parts)-1] + ", " + parts[0]
}

// StartDate is either a reformatted timestamp or the raw value when the
// timestamp could not be read.
type StartDate struct {
	Value       string
	PassThrough bool
}

func (d StartDate) String() string { return d.Value }

func FormatStartDate(ts ticket.Timestamp) StartDate {
	t, ok := ts.Time()
	if !ok {
		return StartDate{Value: string(ts), PassThrough: true}
	}
	return StartDate{Value: t.Format(startDateLayout)}
}

func fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

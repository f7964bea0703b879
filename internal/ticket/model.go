package ticket

import (
	"slices"
	"strings"
	"time"
)

type State string

const (
	StateCreated    State = "CREATED"
	StateAssigned   State = "ASSIGNED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
)

// rank orders states; a ticket never moves to a lower rank.
func (s State) rank() int {
	switch s {
	case StateCreated:
		return 0
	case StateAssigned:
		return 1
	case StateInProgress:
		return 2
	case StateCompleted:
		return 3
	}
	return -1
}

type Priority string

const (
	PriorityNormal    Priority = "Normal"
	PriorityHotShot   Priority = "Hot Shot"
	PriorityEmergency Priority = "Emergency"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityHotShot, PriorityEmergency:
		return true
	}
	return false
}

// Timestamp is a work timestamp kept as the driver app sent it. An empty
// value means the event has not happened yet; Time reports whether a
// non-empty value is well formed.
type Timestamp string

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func (ts Timestamp) IsSet() bool { return strings.TrimSpace(string(ts)) != "" }

func (ts Timestamp) Time() (time.Time, bool) {
	s := strings.TrimSpace(string(ts))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func TimestampOf(t time.Time) Timestamp { return Timestamp(t.Format(time.RFC3339)) }

type Ticket struct {
	Number string `json:"ticket_number"`
	Date   string `json:"date"`

	Customer            string   `json:"customer"`
	Pickup              string   `json:"from_lsd"`
	Delivery            string   `json:"to_lsd"`
	Product             string   `json:"product"`
	Driver              string   `json:"driver"`
	Truck               string   `json:"truck"`
	Trailer             string   `json:"trailer,omitempty"`
	EstimatedVolume     *float64 `json:"est_volume,omitempty"`
	SpecialInstructions string   `json:"special_instructions,omitempty"`
	Priority            Priority `json:"priority"`

	State State `json:"status"`

	ArriveLoad    Timestamp `json:"arrive_load,omitempty"`
	DepartLoad    Timestamp `json:"depart_load,omitempty"`
	ArriveOffload Timestamp `json:"arrive_offload,omitempty"`
	DepartOffload Timestamp `json:"depart_offload,omitempty"`

	ActualVolume     float64  `json:"actual_volume"`
	Hours            float64  `json:"hours"`
	WaitTime         float64  `json:"wait_time"`
	JobDescription   string   `json:"job_description,omitempty"`
	ConsignorLoad    string   `json:"consignor_load,omitempty"`
	ConsignorOffload string   `json:"consignor_offload,omitempty"`
	Placards         []string `json:"placards,omitempty"`
	HazardCheck      bool     `json:"hazard_check"`
	Signature        bool     `json:"signature"`
	Notes            string   `json:"notes,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Exported   bool       `json:"exported"`
	ExportedAt *time.Time `json:"exported_at,omitempty"`
	ExportFile string     `json:"export_file,omitempty"`
}

// Clone returns a copy that shares no slices or pointers with t.
func (t Ticket) Clone() Ticket {
	out := t
	out.Placards = slices.Clone(t.Placards)
	if t.EstimatedVolume != nil {
		v := *t.EstimatedVolume
		out.EstimatedVolume = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		out.CompletedAt = &v
	}
	if t.ExportedAt != nil {
		v := *t.ExportedAt
		out.ExportedAt = &v
	}
	return out
}

type CreateTicketRequest struct {
	Customer            string   `json:"customer"`
	Pickup              string   `json:"from_lsd"`
	Delivery            string   `json:"to_lsd"`
	Product             string   `json:"product"`
	Driver              string   `json:"driver"`
	Truck               string   `json:"truck"`
	Trailer             string   `json:"trailer"`
	EstimatedVolume     *float64 `json:"est_volume"`
	SpecialInstructions string   `json:"special_instructions"`
	Priority            Priority `json:"priority"`
}

// Normalize trims every string field and defaults the priority.
func (r CreateTicketRequest) Normalize() CreateTicketRequest {
	r.Customer = strings.TrimSpace(r.Customer)
	r.Pickup = strings.TrimSpace(r.Pickup)
	r.Delivery = strings.TrimSpace(r.Delivery)
	r.Product = strings.TrimSpace(r.Product)
	r.Driver = strings.TrimSpace(r.Driver)
	r.Truck = strings.TrimSpace(r.Truck)
	r.Trailer = strings.TrimSpace(r.Trailer)
	r.SpecialInstructions = strings.TrimSpace(r.SpecialInstructions)
	r.Priority = Priority(strings.TrimSpace(string(r.Priority)))
	if r.Priority == "" {
		r.Priority = PriorityNormal
	}
	return r
}

// CompletionInput is the batch a driver submits to close out a ticket. Nil
// fields leave the current value in place. Hours and WaitTime fall back to
// the stored value, then to the timestamps, when absent or not positive.
type CompletionInput struct {
	ArriveLoad    *Timestamp `json:"arrive_load"`
	DepartLoad    *Timestamp `json:"depart_load"`
	ArriveOffload *Timestamp `json:"arrive_offload"`
	DepartOffload *Timestamp `json:"depart_offload"`

	ActualVolume     *float64 `json:"actual_volume"`
	Hours            *float64 `json:"hours"`
	WaitTime         *float64 `json:"wait_time"`
	JobDescription   *string  `json:"job_description"`
	ConsignorLoad    *string  `json:"consignor_load"`
	ConsignorOffload *string  `json:"consignor_offload"`
	Placards         []string `json:"placards"`
	HazardCheck      *bool    `json:"hazard_check"`
	Signature        *bool    `json:"signature"`
	Notes            *string  `json:"notes"`
}

// Vocabulary holds the controlled lists a dispatcher picks from. An empty
// list disables the membership check for that field.
type Vocabulary struct {
	Drivers   []string `json:"drivers" yaml:"drivers"`
	Customers []string `json:"customers" yaml:"customers"`
	Products  []string `json:"products" yaml:"products"`
	Trucks    []string `json:"trucks" yaml:"trucks"`
	Trailers  []string `json:"trailers" yaml:"trailers"`
}

// ExportMark is what the billing export stamps on each ticket of a batch.
type ExportMark struct {
	File string
	At   time.Time
}

package ticket

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

type Stage string

const (
	StageCreation   Stage = "creation"
	StageCompletion Stage = "completion"
	StageExport     Stage = "export"
	StageUpdate     Stage = "update"
)

const (
	maxWorkSpanHours    = 24
	highVolumeThreshold = 500
	volumeVarianceLimit = 0.20
)

// lsdPattern matches an Alberta-style legal subdivision, e.g. 10-15-052-20W4.
var lsdPattern = regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{1,3}-\d{1,2}W\d$`)

type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Result struct {
	Stage    Stage   `json:"stage"`
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

func newResult(stage Stage) *Result {
	return &Result{Stage: stage, Errors: []Issue{}, Warnings: []Issue{}}
}

func (r *Result) errorf(field, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(field, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) done() Result {
	r.Valid = len(r.Errors) == 0
	return *r
}

// IsLSD reports whether s is a legal subdivision code.
func IsLSD(s string) bool { return lsdPattern.MatchString(strings.TrimSpace(s)) }

// ValidLocation accepts an LSD or any name of two or more characters (a lease).
func ValidLocation(s string) bool {
	s = strings.TrimSpace(s)
	return IsLSD(s) || len([]rune(s)) >= 2
}

func ValidateCreation(req CreateTicketRequest, vocab Vocabulary) Result {
	req = req.Normalize()
	res := newResult(StageCreation)

	required := []struct{ field, value string }{
		{"customer", req.Customer},
		{"from_lsd", req.Pickup},
		{"to_lsd", req.Delivery},
		{"product", req.Product},
		{"driver", req.Driver},
		{"truck", req.Truck},
	}
	for _, f := range required {
		if f.value == "" {
			res.errorf(f.field, "required field: %s", f.field)
		}
	}

	controlled := []struct {
		field, value string
		list         []string
	}{
		{"customer", req.Customer, vocab.Customers},
		{"driver", req.Driver, vocab.Drivers},
		{"product", req.Product, vocab.Products},
		{"truck", req.Truck, vocab.Trucks},
		{"trailer", req.Trailer, vocab.Trailers},
	}
	for _, f := range controlled {
		if f.value != "" && len(f.list) > 0 && !slices.Contains(f.list, f.value) {
			res.errorf(f.field, "unknown %s: %s", f.field, f.value)
		}
	}

	for _, f := range []struct{ field, value string }{{"from_lsd", req.Pickup}, {"to_lsd", req.Delivery}} {
		if f.value != "" && !ValidLocation(f.value) {
			res.errorf(f.field, "invalid location format: %q", f.value)
		}
	}

	if !req.Priority.Valid() {
		res.errorf("priority", "unknown priority: %s", req.Priority)
	}
	if req.EstimatedVolume != nil && *req.EstimatedVolume < 0 {
		res.errorf("est_volume", "estimated volume cannot be negative")
	}

	return res.done()
}

func ValidateCompletion(t Ticket) Result {
	res := newResult(StageCompletion)

	stamps := []struct {
		field string
		ts    Timestamp
	}{
		{"arrive_load", t.ArriveLoad},
		{"depart_load", t.DepartLoad},
		{"arrive_offload", t.ArriveOffload},
		{"depart_offload", t.DepartOffload},
	}
	for _, s := range stamps {
		if !s.ts.IsSet() {
			res.errorf(s.field, "required timestamp: %s", s.field)
		}
	}
	validateSequence(res, t)

	switch {
	case t.ActualVolume <= 0:
		res.errorf("actual_volume", "volume must be greater than 0")
	case t.ActualVolume > highVolumeThreshold:
		res.warnf("actual_volume", "volume %.2f m³ seems high - please verify", t.ActualVolume)
	}
	if est := t.EstimatedVolume; est != nil && *est > 0 && t.ActualVolume > 0 {
		diff := (t.ActualVolume - *est) / *est
		if math.Abs(diff) > volumeVarianceLimit {
			dir := "over"
			if diff < 0 {
				dir = "under"
			}
			res.warnf("actual_volume", "actual differs from estimated by %.0f%% %s (est %.2f, actual %.2f)",
				math.Abs(diff)*100, dir, *est, t.ActualVolume)
		}
	}

	if !t.HazardCheck {
		res.errorf("hazard_check", "hazard assessment required")
	}
	if !t.Signature {
		res.errorf("signature", "driver signature required")
	}

	return res.done()
}

// validateSequence checks format, order and span of whichever timestamps
// are present. Order is only judged once every present value parses.
func validateSequence(res *Result, t Ticket) {
	type stamp struct {
		field string
		ts    Timestamp
	}
	ordered := []stamp{
		{"arrive_load", t.ArriveLoad},
		{"depart_load", t.DepartLoad},
		{"arrive_offload", t.ArriveOffload},
		{"depart_offload", t.DepartOffload},
	}

	parsed := make(map[string]bool, len(ordered))
	bad := false
	for _, s := range ordered {
		if !s.ts.IsSet() {
			continue
		}
		if _, ok := s.ts.Time(); !ok {
			res.errorf(s.field, "invalid timestamp format: %s", s.field)
			bad = true
			continue
		}
		parsed[s.field] = true
	}
	if bad {
		return
	}

	messages := map[string]string{
		"depart_load":    "departed pickup before arriving",
		"arrive_offload": "arrived at delivery before leaving pickup",
		"depart_offload": "departed delivery before arriving",
	}
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if !parsed[prev.field] || !parsed[cur.field] {
			continue
		}
		a, _ := prev.ts.Time()
		b, _ := cur.ts.Time()
		if !b.After(a) {
			res.errorf(cur.field, "%s", messages[cur.field])
		}
	}

	if parsed["arrive_load"] && parsed["depart_offload"] {
		start, _ := t.ArriveLoad.Time()
		end, _ := t.DepartOffload.Time()
		if span := end.Sub(start).Hours(); span > maxWorkSpanHours {
			res.errorf("timestamps", "total time exceeds %d hours (%.1fh)", maxWorkSpanHours, span)
		}
	}
}

func ValidateExport(t Ticket) Result {
	res := newResult(StageExport)

	if t.State != StateCompleted {
		res.errorf("status", "only completed tickets can be exported (status %s)", t.State)
	}
	if t.ActualVolume <= 0 {
		res.errorf("actual_volume", "cannot export ticket with zero volume")
	}
	if t.Hours <= 0 {
		res.errorf("hours", "cannot export ticket with zero hours")
	}
	if !t.ArriveLoad.IsSet() {
		res.errorf("arrive_load", "arrival timestamp required")
	}

	return res.done()
}

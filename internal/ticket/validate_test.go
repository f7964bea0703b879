package ticket_test

import (
	"strings"
	"testing"

	"github.com/rickshauling/ticketdrop/internal/ticket"
)

func completedTicket() ticket.Ticket {
	est := 30.0
	return ticket.Ticket{
		Number:          "250306001",
		State:           ticket.StateInProgress,
		EstimatedVolume: &est,
		ArriveLoad:      "2025-03-06T08:00:00",
		DepartLoad:      "2025-03-06T09:00:00",
		ArriveOffload:   "2025-03-06T11:00:00",
		DepartOffload:   "2025-03-06T12:00:00",
		ActualVolume:    30,
		Hours:           4,
		HazardCheck:     true,
		Signature:       true,
	}
}

func fieldsOf(issues []ticket.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Field)
	}
	return out
}

func TestIsLSD(t *testing.T) {
	cases := map[string]bool{
		"10-15-052-20W4": true,
		"1-1-1-1W5":      true,
		"10-15-052-20":   false,
		"Dunvegan":       false,
		"":               false,
	}
	for in, want := range cases {
		if got := ticket.IsLSD(in); got != want {
			t.Fatalf("IsLSD(%q) = %v, want %v", in, got, want)
		}
	}
	if !ticket.ValidLocation("Dunvegan Disposal") || ticket.ValidLocation("x") {
		t.Fatalf("ValidLocation should accept lease names and reject single characters")
	}
}

func TestValidateCreationRequiredFields(t *testing.T) {
	res := ticket.ValidateCreation(ticket.CreateTicketRequest{}, ticket.Vocabulary{})
	if res.Valid {
		t.Fatalf("expected invalid")
	}
	want := []string{"customer", "from_lsd", "to_lsd", "product", "driver", "truck"}
	got := fieldsOf(res.Errors)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected errors on %v, got %v", want, got)
	}
	if res.Errors[0].Message != "required field: customer" {
		t.Fatalf("unexpected message %q", res.Errors[0].Message)
	}
}

func TestValidateCreationPriorityAndVolume(t *testing.T) {
	req := validRequest()
	req.Priority = "Whenever"
	neg := -1.0
	req.EstimatedVolume = &neg

	res := ticket.ValidateCreation(req, testVocabulary())
	got := strings.Join(fieldsOf(res.Errors), ",")
	if got != "priority,est_volume" {
		t.Fatalf("expected priority and est_volume errors, got %s", got)
	}

	req = validRequest()
	req.Priority = ticket.PriorityHotShot
	if res := ticket.ValidateCreation(req, testVocabulary()); !res.Valid {
		t.Fatalf("expected Hot Shot to be accepted, got %+v", res.Errors)
	}
}

func TestValidateCompletionPasses(t *testing.T) {
	res := ticket.ValidateCompletion(completedTicket())
	if !res.Valid || len(res.Warnings) != 0 {
		t.Fatalf("expected clean pass, got %+v", res)
	}
	if res.Stage != ticket.StageCompletion {
		t.Fatalf("expected stage completion, got %s", res.Stage)
	}
}

func TestValidateCompletionMissingEverything(t *testing.T) {
	res := ticket.ValidateCompletion(ticket.Ticket{})
	want := "arrive_load,depart_load,arrive_offload,depart_offload,actual_volume,hazard_check,signature"
	if got := strings.Join(fieldsOf(res.Errors), ","); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestValidateCompletionOrdering(t *testing.T) {
	tk := completedTicket()
	tk.ArriveOffload = "2025-03-06T08:30:00"

	res := ticket.ValidateCompletion(tk)
	if res.Valid {
		t.Fatalf("expected invalid")
	}
	if len(res.Errors) != 1 || res.Errors[0].Field != "arrive_offload" ||
		res.Errors[0].Message != "arrived at delivery before leaving pickup" {
		t.Fatalf("unexpected errors %+v", res.Errors)
	}
}

func TestValidateCompletionMalformedTimestampSkipsOrdering(t *testing.T) {
	tk := completedTicket()
	tk.DepartLoad = "yesterday-ish"
	tk.ArriveOffload = "2025-03-06T07:00:00"

	res := ticket.ValidateCompletion(tk)
	if len(res.Errors) != 1 || res.Errors[0].Field != "depart_load" {
		t.Fatalf("expected only the format error, got %+v", res.Errors)
	}
}

func TestValidateCompletionSpanOver24Hours(t *testing.T) {
	tk := completedTicket()
	tk.DepartOffload = "2025-03-07T09:00:00"

	res := ticket.ValidateCompletion(tk)
	if got := strings.Join(fieldsOf(res.Errors), ","); got != "timestamps" {
		t.Fatalf("expected a timestamps error, got %s", got)
	}
}

func TestValidateCompletionVolumeWarnings(t *testing.T) {
	tk := completedTicket()
	tk.ActualVolume = 40

	res := ticket.ValidateCompletion(tk)
	if !res.Valid || len(res.Warnings) != 1 {
		t.Fatalf("expected one variance warning, got %+v", res)
	}
	if !strings.Contains(res.Warnings[0].Message, "33% over") {
		t.Fatalf("unexpected warning %q", res.Warnings[0].Message)
	}

	tk.EstimatedVolume = nil
	tk.ActualVolume = 600
	res = ticket.ValidateCompletion(tk)
	if !res.Valid || len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0].Message, "seems high") {
		t.Fatalf("expected high volume warning, got %+v", res.Warnings)
	}
}

func TestValidateCompletionVarianceBoundary(t *testing.T) {
	cases := []struct {
		name   string
		actual float64
		want   string
	}{
		{"within 20%", 115, ""},
		{"exactly 20%", 120, ""},
		{"25% over", 125, "25% over"},
		{"25% under", 75, "25% under"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tk := completedTicket()
			est := 100.0
			tk.EstimatedVolume = &est
			tk.ActualVolume = tc.actual

			res := ticket.ValidateCompletion(tk)
			if !res.Valid {
				t.Fatalf("variance must only warn, got errors %+v", res.Errors)
			}
			if tc.want == "" {
				if len(res.Warnings) != 0 {
					t.Fatalf("expected no warning, got %+v", res.Warnings)
				}
				return
			}
			if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0].Message, tc.want) {
				t.Fatalf("expected %q warning, got %+v", tc.want, res.Warnings)
			}
		})
	}
}

func TestValidateCompletionSingleMissingCheckbox(t *testing.T) {
	cases := []struct {
		name  string
		clear func(*ticket.Ticket)
		want  string
	}{
		{"hazard check", func(tk *ticket.Ticket) { tk.HazardCheck = false }, "hazard_check"},
		{"signature", func(tk *ticket.Ticket) { tk.Signature = false }, "signature"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tk := completedTicket()
			tc.clear(&tk)

			res := ticket.ValidateCompletion(tk)
			if res.Valid {
				t.Fatalf("expected invalid")
			}
			if got := strings.Join(fieldsOf(res.Errors), ","); got != tc.want {
				t.Fatalf("expected only %s, got %s", tc.want, got)
			}
		})
	}
}

func TestValidateExport(t *testing.T) {
	tk := completedTicket()
	tk.State = ticket.StateCompleted
	if res := ticket.ValidateExport(tk); !res.Valid {
		t.Fatalf("expected valid, got %+v", res.Errors)
	}

	res := ticket.ValidateExport(ticket.Ticket{State: ticket.StateInProgress})
	want := "status,actual_volume,hours,arrive_load"
	if got := strings.Join(fieldsOf(res.Errors), ","); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

package vocab

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rickshauling/ticketdrop/internal/ticket"
)

// FileSource reads the controlled lists from a YAML document:
//
//	drivers: [Brant Fandrey, Cher]
//	customers: [Acme Energy]
//	products: [Crude Oil, Produced Water]
//	trucks: [T-101]
//	trailers: []
//
// The file is read on every call so edits apply without a restart.
type FileSource struct {
	Path string
}

func (s FileSource) Vocabulary(ctx context.Context) (ticket.Vocabulary, error) {
	if err := ctx.Err(); err != nil {
		return ticket.Vocabulary{}, err
	}
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return ticket.Vocabulary{}, fmt.Errorf("read vocabulary: %w", err)
	}

	var v ticket.Vocabulary
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return ticket.Vocabulary{}, fmt.Errorf("parse vocabulary %s: %w", s.Path, err)
	}
	return Clean(v), nil
}

// Clean trims entries and drops blanks and repeats, keeping first-seen order.
func Clean(v ticket.Vocabulary) ticket.Vocabulary {
	return ticket.Vocabulary{
		Drivers:   cleanList(v.Drivers),
		Customers: cleanList(v.Customers),
		Products:  cleanList(v.Products),
		Trucks:    cleanList(v.Trucks),
		Trailers:  cleanList(v.Trailers),
	}
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

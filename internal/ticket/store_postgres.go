package ticket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickshauling/ticketdrop/internal/shared/db"
)

// PostgresStore keeps each collection in its own table, one JSONB document
// per ticket keyed by ticket_number.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func table(c Collection) string {
	if c == CollectionCompleted {
		return "completed_tickets"
	}
	return "active_tickets"
}

func (s *PostgresStore) NumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	const q = `
SELECT ticket_number FROM active_tickets WHERE ticket_number LIKE $1 || '%'
UNION
SELECT ticket_number FROM completed_tickets WHERE ticket_number LIKE $1 || '%'
ORDER BY 1;
`
	rows, err := s.db.QueryContext(ctx, q, prefix)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Insert(ctx context.Context, t Ticket) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM completed_tickets WHERE ticket_number = $1);`, t.Number,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrDuplicate
		}

		const q = `
INSERT INTO active_tickets (ticket_number, doc, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (ticket_number) DO NOTHING;
`
		res, err := tx.ExecContext(ctx, q, t.Number, doc, t.CreatedAt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrDuplicate
		}
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, c Collection, number string) (Ticket, error) {
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE ticket_number = $1;`, table(c))

	var doc []byte
	if err := s.db.QueryRowContext(ctx, q, number).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, err
	}
	var t Ticket
	if err := json.Unmarshal(doc, &t); err != nil {
		return Ticket{}, fmt.Errorf("decode ticket %s: %w", number, err)
	}
	return t, nil
}

func (s *PostgresStore) Replace(ctx context.Context, c Collection, t Ticket) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET doc = $2, updated_at = $3 WHERE ticket_number = $1;`, table(c))

	res, err := s.db.ExecContext(ctx, q, t.Number, doc, t.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Relocate does the upsert and the delete in one transaction. The upsert
// keeps a replay after a lost commit acknowledgement harmless.
func (s *PostgresStore) Relocate(ctx context.Context, t Ticket) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		const upsert = `
INSERT INTO completed_tickets (ticket_number, ticket_date, customer, exported, doc, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (ticket_number) DO UPDATE
SET ticket_date = EXCLUDED.ticket_date,
    customer = EXCLUDED.customer,
    exported = EXCLUDED.exported,
    doc = EXCLUDED.doc,
    updated_at = EXCLUDED.updated_at;
`
		if _, err := tx.ExecContext(ctx, upsert,
			t.Number, t.Date, t.Customer, t.Exported, doc, t.CreatedAt, t.UpdatedAt,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM active_tickets WHERE ticket_number = $1;`, t.Number)
		return err
	})
}

func (s *PostgresStore) List(ctx context.Context, c Collection) ([]Ticket, error) {
	q := fmt.Sprintf(`SELECT doc FROM %s ORDER BY ticket_number;`, table(c))

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Ticket
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var t Ticket
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkExported(ctx context.Context, numbers []string, mark ExportMark) error {
	const q = `
UPDATE completed_tickets
SET exported = TRUE,
    doc = doc || jsonb_build_object('exported', TRUE, 'exported_at', $2::timestamptz, 'export_file', $3::text),
    updated_at = now()
WHERE ticket_number = $1;
`
	return db.InTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, n := range numbers {
			if _, err := tx.ExecContext(ctx, q, n, mark.At.UTC(), mark.File); err != nil {
				return fmt.Errorf("mark %s exported: %w", n, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Vocabulary(ctx context.Context) (Vocabulary, error) {
	const q = `SELECT kind, value FROM vocabulary ORDER BY kind, position, value;`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return Vocabulary{}, err
	}
	defer func() { _ = rows.Close() }()

	var v Vocabulary
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return Vocabulary{}, err
		}
		switch kind {
		case "driver":
			v.Drivers = append(v.Drivers, value)
		case "customer":
			v.Customers = append(v.Customers, value)
		case "product":
			v.Products = append(v.Products, value)
		case "truck":
			v.Trucks = append(v.Trucks, value)
		case "trailer":
			v.Trailers = append(v.Trailers, value)
		}
	}
	return v, rows.Err()
}

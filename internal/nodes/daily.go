package nodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ChienNQuang/Note/internal/errs"
	"github.com/ChienNQuang/Note/internal/ids"
	"github.com/ChienNQuang/Note/internal/store"
)

const (
	// JournalTag marks daily-note roots.
	JournalTag = "#Journal"
	// JournalDateProperty holds the calendar date of a daily note.
	JournalDateProperty = "journal_date"
	// DateLayout is the calendar date format daily notes are keyed by.
	DateLayout = "2006-01-02"
)

type dailyInput struct {
	Date string `validate:"required,datetime=2006-01-02"`
}

// ResolveDailyNote returns the journal root for date (YYYY-MM-DD),
// creating it on first access. Repeated calls for the same date return
// the same node.
//
// Lookup and creation run in one transaction against the daily_notes
// table, whose primary key is the date. If a concurrent writer still
// wins the insert, the unique violation is retried as a lookup.
func (r *Repository) ResolveDailyNote(ctx context.Context, date string) (*Node, error) {
	const op = "nodes.ResolveDailyNote"
	if err := errs.Validate(op, dailyInput{Date: date}); err != nil {
		return nil, err
	}

	v, err, _ := r.daily.Do(date, func() (any, error) {
		n, err := r.resolveDaily(ctx, op, date)
		if err != nil && errs.IsUniqueViolation(err) {
			r.log.Debug("daily note created concurrently, retrying lookup", "date", date)
			n, err = r.resolveDaily(ctx, op, date)
		}
		return n, err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return v.(*Node), nil
}

func (r *Repository) resolveDaily(ctx context.Context, op, date string) (*Node, error) {
	var out *Node
	err := r.store.WithTransaction(ctx, func(ctx context.Context, q store.Querier) error {
		id, err := lookupDaily(ctx, q, date)
		if err != nil {
			return err
		}
		if id == "" {
			// A journal root imported or created before the index existed.
			if id, err = findLegacyDaily(ctx, q, date); err != nil {
				return err
			}
			if id != "" {
				if err := registerDaily(ctx, q, date, id); err != nil {
					return err
				}
			}
		}
		if id != "" {
			out, err = r.getIn(ctx, q, op, id)
			return err
		}

		out, err = r.insert(ctx, q, op, CreateParams{
			Content:    date,
			Properties: map[string]any{JournalDateProperty: date},
			Tags:       []string{JournalTag},
			Kind:       ids.KindPage,
		})
		if err != nil {
			return err
		}
		return registerDaily(ctx, q, date, out.ID)
	})
	return out, err
}

// GetDailyNote returns the journal root for date without creating it.
func (r *Repository) GetDailyNote(ctx context.Context, date string) (*Node, error) {
	const op = "nodes.GetDailyNote"
	if err := errs.Validate(op, dailyInput{Date: date}); err != nil {
		return nil, err
	}
	var out *Node
	err := r.store.WithConnection(ctx, func(ctx context.Context, q store.Querier) error {
		id, err := lookupDaily(ctx, q, date)
		if err != nil {
			return err
		}
		if id == "" {
			if id, err = findLegacyDaily(ctx, q, date); err != nil {
				return err
			}
		}
		if id == "" {
			return errs.Errorf(errs.KindNotFound, op, "daily note for %s", date)
		}
		out, err = r.getIn(ctx, q, op, id)
		return err
	})
	if err != nil {
		return nil, errs.FromStore(op, err)
	}
	return out, nil
}

func lookupDaily(ctx context.Context, q store.Querier, date string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT node_id FROM daily_notes WHERE date = ?`, date).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup daily note: %w", err)
	}
	return id, nil
}

func findLegacyDaily(ctx context.Context, q store.Querier, date string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM nodes
		 WHERE parent_id IS NULL AND content = ? AND instr(tags, ?) > 0
		 ORDER BY created_at, id LIMIT 1`,
		date, `"`+JournalTag+`"`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find journal root: %w", err)
	}
	return id, nil
}

func registerDaily(ctx context.Context, q store.Querier, date, id string) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO daily_notes (date, node_id) VALUES (?, ?)`, date, id,
	); err != nil {
		return fmt.Errorf("register daily note: %w", err)
	}
	return nil
}

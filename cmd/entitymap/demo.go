package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"entitymap"

	"github.com/google/uuid"
)

func ensureTables(ctx context.Context, db *entitymap.DB, force bool) error {
	var opts []entitymap.EnsureOption
	if force {
		opts = append(opts, entitymap.Force())
	}
	if err := entitymap.EnsureTable[account](ctx, db, opts...); err != nil {
		return err
	}
	return entitymap.EnsureTable[auditEvent](ctx, db, opts...)
}

// demo exercises every facade operation against the configured engine and
// prints one line per step.
func demo(ctx context.Context, db *entitymap.DB, out io.Writer, o options) error {
	if err := ensureTables(ctx, db, o.force); err != nil {
		return err
	}

	acct := account{
		Email:     "demo@example.com",
		Balance:   10.5,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := entitymap.Save(ctx, db, &acct); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	fmt.Fprintf(out, "saved account %s\n", acct.ID)

	acct.Balance += 4.5
	if err := entitymap.Save(ctx, db, &acct); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	got, err := entitymap.FindByID[account](ctx, db, acct.ID)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	fmt.Fprintf(out, "loaded account %s balance=%.2f active=%t\n", got.ID, got.Balance, got.Active)

	events := make(chan auditEvent)
	go func() {
		defer close(events)
		for i := 0; i < o.rows; i++ {
			ev := auditEvent{
				ID:        uuid.NewString(),
				AccountID: acct.ID,
				Seq:       i + 1,
				Action:    "deposit",
				Payload:   []byte(fmt.Sprintf(`{"seq":%d}`, i+1)),
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	n, err := entitymap.InsertStream(ctx, db, events, o.batch)
	if err != nil {
		// Unblock the producer if the stream stopped early.
		for range events {
		}
		return fmt.Errorf("stream audit events: %w", err)
	}
	fmt.Fprintf(out, "inserted %d audit events\n", n)

	all, err := entitymap.Find[auditEvent](ctx, db, "")
	if err != nil {
		return fmt.Errorf("list audit events: %w", err)
	}
	mine := 0
	for _, ev := range all {
		if ev.AccountID == acct.ID {
			mine++
		}
	}
	fmt.Fprintf(out, "found %d audit events (%d for this account)\n", len(all), mine)

	deleted, err := entitymap.Delete(ctx, db, &acct)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	fmt.Fprintf(out, "deleted %d account row(s)\n", deleted)
	return nil
}

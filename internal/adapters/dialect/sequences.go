package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/satishbabariya/scoremigrate/internal/core/catalog"
	"github.com/satishbabariya/scoremigrate/internal/core/score"
)

// Dialects without native sequences keep them as rows of the system sequence
// registry. The queries use "?" bind markers.

func (b Base) registry() string {
	return b.Ref(score.SystemGrainName, score.SequencesTable)
}

// RegistrySequence reads an emulated sequence.
func (b Base) RegistrySequence(ctx context.Context, c *Conn, grain, name string) (catalog.SequenceInfo, bool, error) {
	q := fmt.Sprintf("SELECT startvalue, incrementby, minvalue, maxvalue, %s FROM %s WHERE grainid = ? AND seqname = ?",
		b.Quote("cycle"), b.registry())
	var info catalog.SequenceInfo
	err := c.QueryRow(ctx, q, grain, name).Scan(&info.Start, &info.Increment, &info.Min, &info.Max, &info.Cycle)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.SequenceInfo{}, false, nil
	}
	if err != nil {
		return catalog.SequenceInfo{}, false, b.Introspection(q, err)
	}
	return info, true, nil
}

// RegistryCreateSequence registers an emulated sequence.
func (b Base) RegistryCreateSequence(ctx context.Context, c *Conn, seq *score.Sequence) error {
	q := fmt.Sprintf("INSERT INTO %s (grainid, seqname, startvalue, incrementby, minvalue, maxvalue, %s) VALUES (?, ?, ?, ?, ?, ?, ?)",
		b.registry(), b.Quote("cycle"))
	return c.ExecDDL(ctx, OpCreateSequence, q, seq.Grain, seq.Name, seq.Start, seq.Increment, seq.Min, seq.Max, seq.Cycle)
}

// RegistryAlterSequence updates step and bounds; the current value is kept.
func (b Base) RegistryAlterSequence(ctx context.Context, c *Conn, seq *score.Sequence) error {
	q := fmt.Sprintf("UPDATE %s SET incrementby = ?, minvalue = ?, maxvalue = ?, %s = ? WHERE grainid = ? AND seqname = ?",
		b.registry(), b.Quote("cycle"))
	return c.ExecDDL(ctx, OpAlterSequence, q, seq.Increment, seq.Min, seq.Max, seq.Cycle, seq.Grain, seq.Name)
}

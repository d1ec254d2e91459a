package audit

import "context"

// MultiStore fans one record out to several sinks, e.g. Postgres for
// querying plus Kafka for SIEM ingestion. Every sink is attempted; the
// first error is returned so the trail escalates the record.
type MultiStore []Store

func (m MultiStore) Append(ctx context.Context, record Record) error {
	var firstErr error
	for _, store := range m {
		if err := store.Append(ctx, record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

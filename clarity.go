// Package clarity is an in-memory analytics engine for motor warranty sales
// and claims. One session holds one uploaded workbook.
//
// Usage:
//
//	import "github.com/clarity-bi/clarity/session"
//
//	sess := session.New(session.WithLogger(log))
//	_, err := sess.Ingest(ctx, workbook, dataset.FormatXLSX)
//	sess.Filters().ApplyDirectly(map[string]string{"dealer": "A"})
//	snap, err := sess.Recompute(ctx)
//
// The dataset package parses and types the Sales and Claims sheets and keeps
// the ledger of cell edits. The engine joins claims to their policies,
// filters both tables and aggregates KPIs, breakdowns and monthly series.
// Trend fitting, forecasts, anomaly detection, risk scores and insight cards
// live in insight. The server package exposes a session over HTTP and
// cmd/clarity wraps both the server and offline reports.
//
// Nothing here calls an external service; the assistant package only
// builds prompts and parses the structured actions of a model reply.
package clarity

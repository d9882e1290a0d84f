package pipeline

import (
	"context"

	"github.com/malbeclabs/assetbot/pkg/store"
)

// Execute runs a validated statement through the read-only store.
func (p *Pipeline) Execute(ctx context.Context, sql SQL) (*store.ResultSet, error) {
	rs, err := p.cfg.Store.Execute(ctx, sql.Text, sql.Args...)
	if err != nil {
		return nil, &Error{Kind: KindQueryExecution, Op: "execute", SQL: sql.Text, Err: err}
	}
	p.log.Debug("pipeline: query executed", "rows", rs.Len())
	return rs, nil
}

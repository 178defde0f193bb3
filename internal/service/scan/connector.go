package scan

import (
	"context"

	"github.com/mrz1836/hdscan/internal/discovery"
	"github.com/mrz1836/hdscan/internal/indexer"
)

// NewConnector returns a discovery connector that opens an indexer
// connection with ordered failover over endpoints.
func NewConnector(endpoints []indexer.Endpoint, opts indexer.Options) discovery.Connector {
	endpoints = append([]indexer.Endpoint(nil), endpoints...)
	return discovery.ConnectorFunc(func(ctx context.Context) (discovery.Session, error) {
		conn, err := indexer.Connect(ctx, endpoints, opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

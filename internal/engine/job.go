package engine

import (
	"context"
	"errors"
	"fmt"
)

// Connector owns the browser connection around a run.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// RunJob connects, runs e and closes the connection, all on the calling
// goroutine. The connection is closed even when connecting or running fails.
func RunJob(ctx context.Context, conn Connector, e *Engine) (err error) {
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close browser: %w", cerr))
		}
	}()
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	e.log("Conexao com o Chrome estabelecida. Confirme que a aba atual esta no lote desejado.")
	return e.Run(ctx)
}

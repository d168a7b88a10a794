package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
)

var errSessionEnded = errors.NewStd("session ended")

// Run starts the session and blocks until ctx is cancelled or the session
// ends on its own. With KeepServing and HTTP enabled only ctx ends the run,
// so the API can restart a failed session. A loop failure is returned; a
// stop or end of stream is not an error.
func (p *Pipeline) Run(ctx context.Context) error {
	serving := p.opts.KeepServing && p.server != nil

	if err := p.Session.Start(); err != nil {
		p.ShowError(err)
		if !serving {
			return err
		}
		p.log.Error("session failed to start, API remains available", logger.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if serving {
			<-gctx.Done()
			return nil
		}
		select {
		case <-gctx.Done():
			return nil
		case <-p.Session.Done():
			return errSessionEnded
		}
	})

	if p.server != nil {
		g.Go(func() error {
			return p.server.Run(gctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, errSessionEnded) {
		// Let consumers see every caption before reporting
		if werr := p.Session.Wait(ctx); werr != nil {
			return werr
		}
		return p.Session.Err()
	}
	return err
}

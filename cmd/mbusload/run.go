// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/mbus"
	"code.hybscloud.com/mbus/memnet"
)

// routeName is the routing table entry every load message is sent to.
const routeName = "load"

// report summarizes one load run.
type report struct {
	Sent     int
	Accepted uint32
	Rejected uint32
	Replies  uint32
	Failed   uint32
	Elapsed  time.Duration
}

func (r report) write(w io.Writer) {
	fmt.Fprintf(w, "sent=%d accepted=%d rejected=%d replies=%d failed=%d elapsed=%s\n",
		r.Sent, r.Accepted, r.Rejected, r.Replies, r.Failed, r.Elapsed)
	if r.Elapsed > 0 {
		fmt.Fprintf(w, "throughput=%.0f replies/s\n", float64(r.Replies)/r.Elapsed.Seconds())
	}
}

// runLoad drives cfg.Messages through one source session over memnet,
// split across cfg.Producers goroutines, and waits for every reply.
func runLoad(ctx context.Context, cfg loadConfig, logger zerolog.Logger) (report, error) {
	net := memnet.New(memnet.Config{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Latency:   cfg.Latency,
		Logger:    logger,
	})
	net.Register(cfg.Service, memnet.Echo)

	var accepted, rejected, replies, failed atomix.Uint32
	handler := mbus.ReplyHandlerFunc(func(r *mbus.Reply) {
		replies.Add(1)
		if r.HasErrors() {
			failed.Add(1)
		}
	})
	params, err := cfg.Session.Params(handler, logger)
	if err != nil {
		return report{}, err
	}
	params.Routing = mbus.NewRoutes().Add(routeName, mbus.ParseRoute(cfg.Service))
	src := mbus.NewSourceSession(net, params)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < cfg.Producers; p++ {
		share := cfg.Messages / cfg.Producers
		if p < cfg.Messages%cfg.Producers {
			share++
		}
		g.Go(func() error {
			for i := 0; i < share; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				msg := mbus.NewMessage(i)
				msg.SetApproxSize(cfg.Size)
				ok := mbus.Exec(src, mbus.SubmitNameBind(msg, routeName, false, func(o mbus.Outcome) kont.Eff[bool] {
					return kont.Pure(o.IsRight())
				}))
				if ok {
					accepted.Add(1)
				} else {
					rejected.Add(1)
				}
			}
			return nil
		})
	}
	runErr := g.Wait()

	src.Close()
	if err := net.Close(); err != nil && runErr == nil {
		runErr = err
	}
	rep := report{
		Sent:     cfg.Messages,
		Accepted: accepted.Load(),
		Rejected: rejected.Load(),
		Replies:  replies.Load(),
		Failed:   failed.Load(),
		Elapsed:  time.Since(start),
	}
	logger.Info().
		Uint32("accepted", rep.Accepted).
		Uint32("replies", rep.Replies).
		Dur("elapsed", rep.Elapsed).
		Msg("load run finished")
	return rep, runErr
}

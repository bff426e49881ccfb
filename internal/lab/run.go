package lab

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/lansim/internal/config"
	"firestige.xyz/lansim/internal/core"
	"firestige.xyz/lansim/internal/fabric"
)

const (
	// recvInterval is how often receivers check their mailboxes.
	recvInterval = 2 * time.Millisecond
	// settleTimeout bounds the wait for the switch to account for packets
	// it has already taken.
	settleTimeout = 200 * time.Millisecond
)

// Message is one scenario step and where it ended up.
type Message struct {
	From     string
	To       netip.Addr
	Receiver string // empty when no host owns To
	SrcPort  int
	DstPort  int
	Payload  string
}

func (m Message) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d %q", m.From, m.SrcPort, m.To, m.DstPort, m.Payload)
}

// Report is the outcome of a scenario run.
type Report struct {
	Delivered  []Message
	Missing    []Message // expected but not received before the timeout
	Unroutable []Message // no host has the destination address
	Ignored    []Message // transport port out of range, never sent
	Unexpected int       // payloads received that no step accounts for
	Elapsed    time.Duration
	Switch     fabric.Snapshot
}

// OK reports whether every routable message arrived.
func (r *Report) OK() bool {
	return len(r.Missing) == 0 && r.Unexpected == 0
}

type mailKey struct {
	receiver string
	port     uint16
	payload  string
}

// Run executes steps. Steps from one host are sent in order; different
// hosts send concurrently. Receivers poll their mailboxes until every
// routable message arrived or the scenario timeout elapsed. A timeout is
// not an error: the stragglers are listed as Missing.
func (l *Lab) Run(ctx context.Context, steps []config.Step) (*Report, error) {
	if l.sw.State() != fabric.StatePowered {
		return nil, core.ErrNotPowered
	}

	report := &Report{}
	pending := make(map[mailKey][]Message)
	listen := make(map[string]map[uint16]bool)
	outstanding := 0
	bySender := make(map[string][]config.Step)

	for _, step := range steps {
		if _, ok := l.hosts[step.From]; !ok {
			return nil, fmt.Errorf("run: %w: %q", core.ErrHostNotFound, step.From)
		}
		msg := Message{From: step.From, To: step.To, SrcPort: step.SrcPort, DstPort: step.DstPort, Payload: step.Payload}
		if !core.ValidTransportPort(step.SrcPort) || !core.ValidTransportPort(step.DstPort) {
			report.Ignored = append(report.Ignored, msg)
			continue
		}
		bySender[step.From] = append(bySender[step.From], step)

		rcv, ok := l.byAddr[step.To]
		if !ok {
			report.Unroutable = append(report.Unroutable, msg)
			continue
		}
		msg.Receiver = rcv.Hostname()
		key := mailKey{receiver: msg.Receiver, port: uint16(step.DstPort), payload: step.Payload}
		pending[key] = append(pending[key], msg)
		if listen[msg.Receiver] == nil {
			listen[msg.Receiver] = make(map[uint16]bool)
		}
		listen[msg.Receiver][key.port] = true
		outstanding++
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, l.cfg.Scenario.Timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for _, name := range l.order {
		queue := bySender[name]
		if len(queue) == 0 {
			continue
		}
		h := l.hosts[name]
		g.Go(func() error {
			for _, step := range queue {
				err := h.Send(gctx, []byte(step.Payload), step.To, step.SrcPort, step.DstPort)
				if err == nil {
					continue
				}
				if errors.Is(err, core.ErrInterrupted) {
					return nil
				}
				return fmt.Errorf("host %q: %w", name, err)
			}
			return nil
		})
	}

	sendDone := make(chan error, 1)
	go func() { sendDone <- g.Wait() }()

	ticker := time.NewTicker(recvInterval)
	defer ticker.Stop()

	var sendErr error
	sent := false
	for !(sent && outstanding == 0) && sendErr == nil {
		select {
		case <-runCtx.Done():
		case err := <-sendDone:
			sendErr, sent = err, true
			continue
		case <-ticker.C:
		}
		if runCtx.Err() != nil {
			break
		}
		outstanding -= l.collect(listen, pending, report)
	}
	// One last sweep for anything that landed with the deadline.
	l.collect(listen, pending, report)

	cancel()
	if !sent {
		sendErr = <-sendDone
	}

	for _, msgs := range pending {
		report.Missing = append(report.Missing, msgs...)
	}
	slices.SortFunc(report.Missing, func(a, b Message) int {
		return cmp.Or(
			cmp.Compare(a.Receiver, b.Receiver),
			cmp.Compare(a.DstPort, b.DstPort),
			cmp.Compare(a.Payload, b.Payload),
		)
	})
	report.Elapsed = time.Since(start)
	l.settle(ctx)
	report.Switch = l.sw.Stats()

	l.logger.WithField("delivered", len(report.Delivered)).
		WithField("missing", len(report.Missing)).
		Infof("scenario finished in %s", report.Elapsed)

	if sendErr != nil {
		return report, sendErr
	}
	if ctx.Err() != nil {
		return report, fmt.Errorf("run: %w", ctx.Err())
	}
	return report, nil
}

// collect drains the watched mailboxes once and returns how many expected
// messages it matched.
func (l *Lab) collect(listen map[string]map[uint16]bool, pending map[mailKey][]Message, report *Report) int {
	matched := 0
	for _, name := range l.order {
		ports := listen[name]
		if len(ports) == 0 {
			continue
		}
		h := l.hosts[name]
		for p := range ports {
			payload, ok := h.Recv(int(p))
			if !ok {
				continue
			}
			key := mailKey{receiver: name, port: p, payload: string(payload)}
			msgs := pending[key]
			if len(msgs) == 0 {
				report.Unexpected++
				l.logger.WithField("host", name).Warnf("unexpected payload on port %d: %q", p, payload)
				continue
			}
			report.Delivered = append(report.Delivered, msgs[0])
			if len(msgs) == 1 {
				delete(pending, key)
			} else {
				pending[key] = msgs[1:]
			}
			matched++
		}
	}
	return matched
}

// settle waits until every packet the switch has taken has an outcome, so
// the report and the tap agree with what the hosts received. A delivery
// stuck on a full mailbox never settles; the wait gives up after
// settleTimeout.
func (l *Lab) settle(ctx context.Context) {
	deadline := time.NewTimer(settleTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(recvInterval)
	defer ticker.Stop()

	for {
		s := l.sw.Stats()
		if s.Received == s.Forwarded+s.Fallback+s.Dropped+s.Malformed+s.Aborted {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

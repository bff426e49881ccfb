// Package tap records switched traffic to a pcap file, like a mirror port
// on a managed switch.
package tap

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/bpf"

	"firestige.xyz/lansim/internal/log"
)

// LinkType is DLT_USER0; frames start directly with the simulator header.
const LinkType = layers.LinkType(147)

const snapLen = 65536

// Tap is a filtered pcap recorder. It is safe for concurrent use.
type Tap struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	vm     *bpf.VM
	closer io.Closer
	counts map[string]uint64
	now    func() time.Time
}

// New writes a pcap file header to w and returns a tap recording packets
// that match filter.
func New(w io.Writer, filter string) (*Tap, error) {
	prog, err := CompileFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("compile tap filter: %w", err)
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("load tap filter: %w", err)
	}

	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, LinkType); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Tap{
		w:      pw,
		vm:     vm,
		counts: make(map[string]uint64),
		now:    time.Now,
	}, nil
}

// Open creates (or truncates) the file at path and records into it.
func Open(path, filter string) (*Tap, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open tap file: %w", err)
	}
	t, err := New(f, filter)
	if err != nil {
		f.Close()
		return nil, err
	}
	t.closer = f
	return t, nil
}

// Match reports whether pkt passes the tap filter.
func (t *Tap) Match(pkt []byte) bool {
	n, err := t.vm.Run(pkt)
	return err == nil && n > 0
}

// Mirror records pkt if it matches the filter. result is the switch's
// verdict for the packet.
func (t *Tap) Mirror(result string, pkt []byte) {
	if !t.Match(pkt) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ci := gopacket.CaptureInfo{
		Timestamp:     t.now(),
		CaptureLength: len(pkt),
		Length:        len(pkt),
	}
	if err := t.w.WritePacket(ci, pkt); err != nil {
		log.GetLogger().WithError(err).WithField("result", result).Warn("tap write failed")
		return
	}
	t.counts[result]++
}

// Counts returns how many packets were recorded per switch verdict.
func (t *Tap) Counts() map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint64, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Close closes the underlying file when the tap was created by Open.
func (t *Tap) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

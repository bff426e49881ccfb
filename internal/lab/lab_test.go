package lab

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/lansim/internal/config"
	"firestige.xyz/lansim/internal/core"
	"firestige.xyz/lansim/internal/metrics"
)

func testConfig() config.Config {
	cfg := *config.Sample()
	cfg.Switch.PollInterval = time.Millisecond
	cfg.Scenario.Timeout = 2 * time.Second
	return cfg
}

func startLab(t *testing.T, cfg config.Config) *Lab {
	t.Helper()
	l, err := Build(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, l.Start(ctx))
	return l
}

func TestBuild(t *testing.T) {
	l, err := Build(testConfig())
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, []string{"alice", "bob"}, l.Hosts())
	assert.Nil(t, l.Tap())

	alice, err := l.Host("alice")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), alice.Address())

	_, err = l.Host("mallory")
	assert.ErrorIs(t, err, core.ErrHostNotFound)

	p, err := l.Switch().Port(1)
	require.NoError(t, err)
	addr, ok := p.Address()
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), addr)
}

func TestBuildErrors(t *testing.T) {
	t.Run("no ports", func(t *testing.T) {
		cfg := testConfig()
		cfg.Switch.Ports = 0
		_, err := Build(cfg)
		assert.ErrorIs(t, err, core.ErrConfigInvalid)
	})

	t.Run("shared port", func(t *testing.T) {
		cfg := testConfig()
		cfg.Hosts[1].Port = cfg.Hosts[0].Port
		_, err := Build(cfg)
		assert.ErrorIs(t, err, core.ErrPortInUse)
	})

	t.Run("bad tap filter", func(t *testing.T) {
		cfg := testConfig()
		cfg.Tap = config.TapConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "x.pcap"), Filter: "proto udp"}
		_, err := Build(cfg)
		assert.Error(t, err)
	})
}

func TestRunBeforeStart(t *testing.T) {
	l, err := Build(testConfig())
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Run(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrNotPowered)
}

func TestRunSample(t *testing.T) {
	cfg := testConfig()
	l := startLab(t, cfg)

	report, err := l.Run(context.Background(), cfg.Scenario.Steps)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Len(t, report.Delivered, 2)
	assert.Empty(t, report.Missing)
	assert.Equal(t, uint64(2), report.Switch.Forwarded)

	for _, msg := range report.Delivered {
		switch msg.Payload {
		case "hello bob":
			assert.Equal(t, "bob", msg.Receiver)
		case "hello alice":
			assert.Equal(t, "alice", msg.Receiver)
		default:
			t.Errorf("unexpected delivery %s", msg)
		}
	}
}

func TestRunClassifiesSteps(t *testing.T) {
	cfg := testConfig()
	l := startLab(t, cfg)

	alice := netip.MustParseAddr("10.0.0.1")
	bob := netip.MustParseAddr("10.0.0.2")
	nowhere := netip.MustParseAddr("10.0.0.99")

	steps := []config.Step{
		{From: "alice", To: bob, SrcPort: 1, DstPort: 7, Payload: "one"},
		{From: "alice", To: bob, SrcPort: 1, DstPort: 7, Payload: "two"},
		{From: "alice", To: nowhere, SrcPort: 1, DstPort: 7, Payload: "lost"},
		{From: "alice", To: bob, SrcPort: 1, DstPort: 70000, Payload: "ignored"},
		{From: "bob", To: alice, SrcPort: -1, DstPort: 7, Payload: "ignored too"},
		{From: "bob", To: alice, SrcPort: 7, DstPort: 7, Payload: "three"},
		{From: "bob", To: bob, SrcPort: 7, DstPort: 8, Payload: "loopback"},
	}

	report, err := l.Run(context.Background(), steps)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Len(t, report.Delivered, 4)
	require.Len(t, report.Unroutable, 1)
	assert.Equal(t, "lost", report.Unroutable[0].Payload)
	assert.Len(t, report.Ignored, 2)

	// Same sender, same mailbox: arrival order follows send order.
	var toBob []string
	for _, msg := range report.Delivered {
		if msg.Receiver == "bob" && msg.DstPort == 7 {
			toBob = append(toBob, msg.Payload)
		}
	}
	assert.Equal(t, []string{"one", "two"}, toBob)

	require.Eventually(t, func() bool {
		return l.Switch().Stats().Dropped == 1
	}, time.Second, time.Millisecond)
}

func TestRunUnknownSender(t *testing.T) {
	l := startLab(t, testConfig())
	_, err := l.Run(context.Background(), []config.Step{{From: "mallory", To: netip.MustParseAddr("10.0.0.1")}})
	assert.ErrorIs(t, err, core.ErrHostNotFound)
}

func TestRunTimeoutReportsMissing(t *testing.T) {
	cfg := testConfig()
	cfg.Scenario.Timeout = 50 * time.Millisecond

	l, err := Build(cfg)
	require.NoError(t, err)
	defer l.Close()

	// Power the switch up and stop it again: nothing is forwarded.
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))
	cancel()
	<-l.Switch().Done()

	bob := netip.MustParseAddr("10.0.0.2")
	steps := []config.Step{
		{From: "alice", To: bob, SrcPort: 1, DstPort: 2, Payload: "a"},
		{From: "alice", To: bob, SrcPort: 1, DstPort: 2, Payload: "b"},
	}
	report, err := l.Run(context.Background(), steps)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Empty(t, report.Delivered)
	require.Len(t, report.Missing, 2)
	assert.Equal(t, "a", report.Missing[0].Payload)
	assert.Equal(t, "b", report.Missing[1].Payload)
}

func TestRunWithTap(t *testing.T) {
	cfg := testConfig()
	path := filepath.Join(t.TempDir(), "lab.pcap")
	cfg.Tap = config.TapConfig{Enabled: true, Path: path, Filter: "dst 10.0.0.2"}
	l := startLab(t, cfg)
	require.NotNil(t, l.Tap())

	report, err := l.Run(context.Background(), cfg.Scenario.Steps)
	require.NoError(t, err)
	require.True(t, report.OK())

	assert.Equal(t, map[string]uint64{metrics.ResultForwarded: 1}, l.Tap().Counts())
	require.NoError(t, l.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(24))
}

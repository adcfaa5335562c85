// Package scenario runs the puppet end-to-end flow: create a fresh puppet
// account, store a value in it with a second transaction, then read it back.
package scenario

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/solana-token-lab/bankrun/internal/observability"
	"github.com/solana-token-lab/bankrun/internal/provider"
	"github.com/solana-token-lab/bankrun/internal/puppet"
	"github.com/solana-token-lab/bankrun/internal/solana"
)

// DefaultValue is the value written by the scenario unless overridden.
const DefaultValue uint64 = 123456

// Options configures a run.
type Options struct {
	Value uint64
	// Versioned submits set_data as a v0 transaction.
	Versioned bool
	// ViaMaster sets the value through the puppet-master program.
	ViaMaster bool
	Logger    *log.Logger
}

// Result records what a run did.
type Result struct {
	Puppet        solana.PublicKey
	InitSignature string
	SetSignature  string
	Value         uint64
	Duration      time.Duration
}

// Run executes the flow through p. Two submissions share one session, so the
// value read back proves state carried over from the first to the second.
func Run(ctx context.Context, p provider.SubmitOnlyProvider, opts Options) (*Result, error) {
	if opts.Value == 0 {
		opts.Value = DefaultValue
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	start := time.Now()
	client := puppet.NewClient(p)

	puppetKey, err := solana.NewKeypair()
	if err != nil {
		return nil, err
	}
	res := &Result{Puppet: puppetKey.PublicKey()}

	res.InitSignature, err = client.Initialize(ctx, puppetKey)
	if err != nil {
		return nil, fmt.Errorf("initialize puppet: %w", err)
	}
	logger.Printf("initialized puppet %s: %s", res.Puppet, res.InitSignature)

	switch {
	case opts.ViaMaster:
		res.SetSignature, err = client.PullStrings(ctx, res.Puppet, opts.Value)
	case opts.Versioned:
		res.SetSignature, err = client.SetDataVersioned(ctx, res.Puppet, opts.Value)
	default:
		res.SetSignature, err = client.SetData(ctx, res.Puppet, opts.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("set data: %w", err)
	}
	logger.Printf("set puppet %s to %d: %s", res.Puppet, opts.Value, res.SetSignature)

	res.Value, err = client.FetchData(ctx, res.Puppet)
	if err != nil {
		return nil, fmt.Errorf("fetch puppet: %w", err)
	}
	if res.Value != opts.Value {
		return res, fmt.Errorf("puppet %s holds %d, want %d", res.Puppet, res.Value, opts.Value)
	}

	res.Duration = time.Since(start)
	observability.RecordScenarioSuccess(time.Now().Unix())
	return res, nil
}

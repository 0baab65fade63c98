package main

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/meridian/pkg/consensus"
	"github.com/cuemby/meridian/pkg/diagnostics"
	"github.com/cuemby/meridian/pkg/events"
	"github.com/cuemby/meridian/pkg/kvstore"
	"github.com/cuemby/meridian/pkg/log"
	"github.com/cuemby/meridian/pkg/metrics"
	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
	"github.com/cuemby/meridian/pkg/proofmap"
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run an in-memory validator cluster for demonstration",
}

var sandboxRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a sandboxed validator cluster through a number of blocks",
	Long: `Starts N validators wired to a deterministic in-memory transport
(consensus.Sandbox), submits a key-value transaction to every validator's
pool before each round, and has the round's leader propose. Every
validator commits the same block, demonstrating the propose/prevote/
precommit pipeline end to end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		numValidators, _ := cmd.Flags().GetInt("validators")
		rounds, _ := cmd.Flags().GetInt("rounds")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		if numValidators < 1 {
			return fmt.Errorf("--validators must be at least 1")
		}

		cfg := consensus.DefaultConfig()
		sb := consensus.NewSandbox()
		states := make([]*consensus.State, numValidators)
		brokers := make([]*events.Broker, numValidators)

		for i := 0; i < numValidators; i++ {
			dataDir, err := os.MkdirTemp("", "meridian-sandbox-")
			if err != nil {
				return fmt.Errorf("creating scratch dir: %w", err)
			}
			defer os.RemoveAll(dataDir)

			backend, err := kvstore.OpenBolt(dataDir)
			if err != nil {
				return fmt.Errorf("validator %d: opening backend: %w", i, err)
			}
			defer backend.Close()

			db := patch.NewDatabase(backend)
			broker := events.NewBroker()
			broker.Start()
			brokers[i] = broker

			cache := consensus.NewMessageCache(db)
			id := consensus.ValidatorID(i)
			state := consensus.NewState(id, numValidators, cfg, db, &kvDispatcher{}, sb.Transport(id), broker, cache)
			states[i] = state
			sb.Register(id, state)
		}
		defer func() {
			for _, b := range brokers {
				b.Stop()
			}
		}()

		if metricsAddr != "" {
			indexes := make([]metrics.IndexStats, 0)
			collector := metrics.NewCollector(states[0], indexes...)
			collector.Start()
			defer collector.Stop()

			mux := diagnostics.Mux()
			srv := &http.Server{Addr: metricsAddr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("metrics server failed", err)
				}
			}()
			defer srv.Close()
			fmt.Printf("metrics: http://%s/metrics\n", metricsAddr)
		}

		fmt.Printf("starting sandbox: %d validators, %d rounds\n", numValidators, rounds)

		for r := 0; r < rounds; r++ {
			tx := encodeKVTx(fmt.Sprintf("key-%d", r), fmt.Sprintf("value-%d", r))
			hash := objecthash.LeafValueHash(tx)
			for _, s := range states {
				if err := s.AddTransaction(hash, tx); err != nil {
					return fmt.Errorf("round %d: seeding transaction: %w", r, err)
				}
			}

			leader := consensus.Leader(consensus.Epoch(states[0].Epoch()), consensus.Round(states[0].Round()), numValidators)
			if err := states[leader].BuildOwnPropose(); err != nil {
				return fmt.Errorf("round %d: leader %d proposing: %w", r, leader, err)
			}
			if err := sb.Drain(); err != nil {
				return fmt.Errorf("round %d: draining network: %w", r, err)
			}

			fmt.Printf("round %d: leader=%d", r, leader)
			for i, s := range states {
				fmt.Printf("  v%d[h=%d e=%d]", i, s.Height(), s.Epoch())
			}
			fmt.Println()
		}

		return nil
	},
}

func init() {
	sandboxRunCmd.Flags().Int("validators", 4, "Number of validators")
	sandboxRunCmd.Flags().Int("rounds", 3, "Number of blocks to commit")
	sandboxRunCmd.Flags().String("metrics-addr", "", "If set, serve /metrics and /health on this address for the run's duration")

	sandboxCmd.AddCommand(sandboxRunCmd)
}

// kvDispatcher applies each transaction as a put into a single proof map
// address, "kv", and reports that map's object hash to the aggregator.
// Real service-runtime dispatch is out of scope; this exists to give the
// sandbox demo something concrete to execute and aggregate.
type kvDispatcher struct {
	fork *patch.Fork
}

func (d *kvDispatcher) PreCheck(raw []byte) error {
	_, _, err := decodeKVTx(raw)
	return err
}

func (d *kvDispatcher) Execute(fork *patch.Fork, txs [][]byte) (objecthash.Hash, error) {
	d.fork = fork
	view := fork.View("kv")
	defer view.Close()
	view.MarkAggregated("")

	m := proofmap.New(view)
	for _, raw := range txs {
		key, value, err := decodeKVTx(raw)
		if err != nil {
			continue
		}
		if err := m.Put(key, value); err != nil {
			return objecthash.Hash{}, fmt.Errorf("kvDispatcher: put: %w", err)
		}
	}
	return objecthash.Hash{}, nil
}

func (d *kvDispatcher) HashOf(addr patch.ResolvedAddress) (objecthash.Hash, bool) {
	if d.fork == nil || addr.Name != "kv" {
		return objecthash.Hash{}, false
	}
	view := d.fork.ReadonlyView(addr.Name)
	defer view.Close()
	return proofmap.New(view).ObjectHash(), true
}

// encodeKVTx packs a key/value pair as len(key) uint32 | key | value.
func encodeKVTx(key, value string) []byte {
	buf := make([]byte, 4+len(key)+len(value))
	binary.BigEndian.PutUint32(buf, uint32(len(key)))
	copy(buf[4:], key)
	copy(buf[4+len(key):], value)
	return buf
}

func decodeKVTx(raw []byte) (key, value []byte, err error) {
	if len(raw) < 4 {
		return nil, nil, fmt.Errorf("kvDispatcher: transaction too short")
	}
	klen := binary.BigEndian.Uint32(raw)
	if int(klen) > len(raw)-4 {
		return nil, nil, fmt.Errorf("kvDispatcher: malformed key length")
	}
	return raw[4 : 4+klen], raw[4+klen:], nil
}

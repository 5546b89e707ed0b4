// Command relayd runs a standalone relay process: a durable SQLite-backed
// Store, a Relay wired to it, and a periodic cleanup loop. It loads or
// generates the relay's static key but constructs no relaycore.Server and
// accepts no device sessions itself.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/relaycore"
	"github.com/zerok-sync/sync/wake"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithFields(logrus.Fields{"package": "main"}).Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dbPath     string
		keyPath    string
		cleanupPer time.Duration
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "relayd",
		Short: "Run the sync engine relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return runRelay(cmd.Context(), dbPath, keyPath, cleanupPer)
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.Flags().StringVar(&dbPath, "db", "relay.db", "path to the relay's SQLite database file")
	root.Flags().StringVar(&keyPath, "identity-key", "relay-identity.key", "path to the relay's long-term Noise static key")
	root.Flags().DurationVar(&cleanupPer, "cleanup-interval", time.Hour, "how often to sweep expired blobs and invites")

	return root
}

func runRelay(ctx context.Context, dbPath, keyPath string, cleanupPer time.Duration) error {
	logger := logrus.WithFields(logrus.Fields{"function": "runRelay", "package": "main"})

	staticPriv, err := loadOrGenerateRelayKey(keyPath)
	if err != nil {
		return fmt.Errorf("load relay identity: %w", err)
	}

	store, err := relaycore.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open relay store: %w", err)
	}
	defer store.Close()

	relay := relaycore.NewRelay(store, wake.NoopNotifier{})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runCleanupLoop(ctx, relay, cleanupPer)

	logger.WithFields(logrus.Fields{"db": dbPath}).Info("Relay running; dial in with a transport.Capability bound to this process and drive relaycore.Server.ServeSession per connection")
	_ = staticPriv // not used in this process; an embedding application would pass it to relaycore.NewServer
	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

func runCleanupLoop(ctx context.Context, relay *relaycore.Relay, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if deleted, err := relay.RunCleanup(ctx); err != nil {
				logrus.WithFields(logrus.Fields{"error": err.Error()}).Warn("Cleanup pass failed")
			} else if deleted > 0 {
				logrus.WithFields(logrus.Fields{"deleted": deleted}).Debug("Cleanup pass removed expired rows")
			}
		}
	}
}

func loadOrGenerateRelayKey(path string) ([32]byte, error) {
	var key [32]byte
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != 32 {
			return key, fmt.Errorf("identity key file %s has wrong length %d", path, len(raw))
		}
		copy(key[:], raw)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return key, fmt.Errorf("read identity key: %w", err)
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return key, fmt.Errorf("generate relay identity: %w", err)
	}
	if err := os.WriteFile(path, kp.Private[:], 0o600); err != nil {
		return key, fmt.Errorf("persist relay identity: %w", err)
	}
	return kp.Private, nil
}

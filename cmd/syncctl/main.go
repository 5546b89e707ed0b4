// Command syncctl is a demo/debug CLI for the sync client. Since the
// engine ships only an in-process transport (no real network listener),
// syncctl spins up a local relaycore.Server on an in-process network and
// drives a client.Client against it, one subcommand per scenario. It is
// meant for exercising the client's public API end to end, not as a
// production sync tool: flag semantics beyond this are out of scope.
package main

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zerok-sync/sync/client"
	"github.com/zerok-sync/sync/crypto"
	"github.com/zerok-sync/sync/relaycore"
	"github.com/zerok-sync/sync/transport"
	"github.com/zerok-sync/sync/wake"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithFields(logrus.Fields{"package": "main"}).Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "syncctl",
		Short: "Exercise the sync client against a local in-process relay",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newDemoCmd())
	return root
}

// newDemoCmd runs the canonical two-device scenario: bring up a relay,
// connect two devices to the same group, push from one, pull from the
// other, and print what each step observed.
func newDemoCmd() *cobra.Command {
	var timeout time.Duration
	var payload string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Push a message from device A and pull it back on device B",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runDemo(ctx, payload)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall deadline for the demo run")
	cmd.Flags().StringVar(&payload, "payload", "hello from syncctl", "plaintext pushed by device A")
	return cmd
}

func runDemo(ctx context.Context, payload string) error {
	logger := logrus.WithFields(logrus.Fields{"function": "runDemo", "package": "main"})

	network := transport.NewNetwork()

	relayKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate relay identity: %w", err)
	}
	var relayNode transport.NodeID
	copy(relayNode[:], relayKeys.Public[:])

	dbPath, err := os.MkdirTemp("", "syncctl-relay-*")
	if err != nil {
		return fmt.Errorf("create relay scratch dir: %w", err)
	}
	defer os.RemoveAll(dbPath)

	store, err := relaycore.NewStore(dbPath + "/relay.db")
	if err != nil {
		return fmt.Errorf("open relay store: %w", err)
	}
	defer store.Close()

	relay := relaycore.NewRelay(store, wake.NoopNotifier{})
	relayEndpoint := network.NewEndpoint(relayNode)
	server, err := relaycore.NewServer(relay, relayEndpoint, relayKeys.Private)
	if err != nil {
		return fmt.Errorf("construct relay server: %w", err)
	}

	var groupID [32]byte
	if _, err := readRandom(groupID[:]); err != nil {
		return err
	}
	var groupSecret [32]byte
	if _, err := readRandom(groupSecret[:]); err != nil {
		return err
	}
	var salt [crypto.GroupKeySaltSize]byte
	if _, err := readRandom(salt[:]); err != nil {
		return err
	}
	membership := &client.GroupMembership{
		GroupID:     groupID,
		GroupSecret: groupSecret,
		Salt:        salt,
		RelayNodeID: relayNode,
	}

	deviceA, aNode, err := newDemoDevice(network, membership)
	if err != nil {
		return fmt.Errorf("construct device A: %w", err)
	}
	deviceB, bNode, err := newDemoDevice(network, membership)
	if err != nil {
		return fmt.Errorf("construct device B: %w", err)
	}
	defer deviceA.Disconnect()
	defer deviceB.Disconnect()

	go server.ServeSession(ctx, aNode)
	go server.ServeSession(ctx, bNode)

	if _, err := deviceA.Connect(ctx); err != nil {
		return fmt.Errorf("device A connect: %w", err)
	}
	if _, err := deviceB.Connect(ctx); err != nil {
		return fmt.Errorf("device B connect: %w", err)
	}

	pushResult, err := deviceA.Push(ctx, []byte(payload), 0)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	logger.WithFields(logrus.Fields{"cursor": pushResult.Cursor, "blob_id": pushResult.BlobID}).Info("Device A pushed")

	pullResult, err := deviceB.Pull(ctx, 0, 10)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	for _, blob := range pullResult.Blobs {
		logger.WithFields(logrus.Fields{"cursor": blob.Cursor, "sender": blob.SenderID}).Infof("Device B received: %s", blob.Plaintext)
	}
	return nil
}

func newDemoDevice(network *transport.Network, membership *client.GroupMembership) (*client.Client, transport.NodeID, error) {
	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, transport.NodeID{}, fmt.Errorf("generate device identity: %w", err)
	}
	store := crypto.NewMemorySecretStore()
	if err := store.Put("device-identity-key", keyPair.Private[:]); err != nil {
		return nil, transport.NodeID{}, fmt.Errorf("store device identity: %w", err)
	}

	var nodeID transport.NodeID
	copy(nodeID[:], keyPair.Public[:])
	endpoint := network.NewEndpoint(nodeID)

	opts := client.NewOptions()
	opts.SecretStore = store
	opts.Transport = endpoint
	opts.Membership = membership

	c, err := client.New(opts)
	if err != nil {
		return nil, transport.NodeID{}, err
	}
	return c, nodeID, nil
}

func readRandom(b []byte) (int, error) {
	return cryptorand.Read(b)
}

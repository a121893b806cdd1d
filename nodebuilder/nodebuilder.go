package nodebuilder

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	datastore "github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shibukawa/configdir"

	"github.com/adhikar/registry/api"
	"github.com/adhikar/registry/claims"
	"github.com/adhikar/registry/council"
	"github.com/adhikar/registry/ledger"
	"github.com/adhikar/registry/metrics"
	"github.com/adhikar/registry/registry"
	"github.com/adhikar/registry/storage"
	"github.com/adhikar/registry/voting"
)

var logger = logging.Logger("nodebuilder")

// NodeBuilder wires a registry node from Config. LedgerClient may be set
// before Start to inject a client; otherwise one is dialed from RPCURL.
type NodeBuilder struct {
	Config       *Config
	LedgerClient ledger.Client

	mu       sync.Mutex
	closers  []func() error
	service  *registry.Service
	verifier *ledger.Verifier
	server   *api.Server
	addr     net.Addr
	metrics  *prometheus.Registry
}

func (nb *NodeBuilder) Service() *registry.Service {
	return nb.service
}

func (nb *NodeBuilder) Verifier() *ledger.Verifier {
	return nb.verifier
}

// Addr is the address the API is listening on once started.
func (nb *NodeBuilder) Addr() net.Addr {
	return nb.addr
}

func (nb *NodeBuilder) Start(ctx context.Context) error {
	if err := nb.configAssertions(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := nb.Stop(); err != nil {
			logger.Errorw("error stopping node", "err", err)
		}
	}()

	if err := nb.startRegistry(ctx); err != nil {
		nb.Stop()
		return err
	}

	nb.metrics = prometheus.NewRegistry()
	if err := metrics.Register(nb.metrics); err != nil {
		nb.Stop()
		return err
	}
	nb.metrics.MustRegister(collectors.NewGoCollector())

	nb.server = api.New(nb.service, api.Options{
		VerifyRatePerSecond: nb.Config.HTTP.VerifyRatePerSecond,
		VerifyBurst:         nb.Config.HTTP.VerifyBurst,
		VerifyMaxClients:    nb.Config.HTTP.VerifyMaxClients,
		Gatherer:            nb.metrics,
	})
	addr, err := nb.server.Start(nb.Config.HTTP.Listen)
	if err != nil {
		nb.Stop()
		return errors.Wrap(err, "error starting api")
	}
	nb.addr = addr
	return nil
}

// StartVerifier wires only the read side, for one-shot verification.
func (nb *NodeBuilder) StartVerifier(ctx context.Context) (*ledger.Verifier, error) {
	client, err := nb.ledgerClient(ctx)
	if err != nil {
		return nil, err
	}
	v, err := ledger.NewVerifier(client, ledger.VerifierOptions{
		Contract: nb.Config.Ledger.Contract,
		ABI:      nb.Config.Ledger.ABI,
	})
	if err != nil {
		return nil, err
	}
	nb.verifier = v
	return v, nil
}

func (nb *NodeBuilder) Stop() error {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := nb.server.Stop(ctx); err != nil {
			logger.Warnw("error stopping api", "err", err)
		}
		nb.server = nil
	}
	var firstErr error
	for i := len(nb.closers) - 1; i >= 0; i-- {
		if err := nb.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	nb.closers = nil
	return firstErr
}

func (nb *NodeBuilder) configAssertions() error {
	conf := nb.Config
	if conf == nil {
		return errors.New("error: a Config is required")
	}
	if len(conf.Council.Members) == 0 {
		return errors.New("error: the council has no members")
	}
	if conf.Council.RequiredVotes > len(conf.Council.Members) {
		return errors.Errorf("error: RequiredVotes %d exceeds council size %d", conf.Council.RequiredVotes, len(conf.Council.Members))
	}
	if conf.Ledger.Contract == (common.Address{}) {
		logger.Warnw("no contract address configured; finalization will fail until one is set")
	}
	return nil
}

func (nb *NodeBuilder) startRegistry(ctx context.Context) error {
	conf := nb.Config

	ds, err := conf.Storage.ToDatastore("claims")
	if err != nil {
		return errors.Wrap(err, "error opening claim storage")
	}
	nb.closers = append(nb.closers, ds.Close)
	store := claims.NewDatastoreStore(ds)

	members, err := council.New(conf.Council.Members...)
	if err != nil {
		return errors.Wrap(err, "error building council")
	}

	keyring, err := nb.keyring(ctx)
	if err != nil {
		return err
	}

	client, err := nb.ledgerClient(ctx)
	if err != nil {
		return err
	}

	anchor := ledger.NewAnchor(client, ledger.AnchorOptions{
		Contract:            conf.Ledger.Contract,
		ABI:                 conf.Ledger.ABI,
		ConfirmationTimeout: conf.Ledger.ConfirmationTimeout,
		PollInterval:        conf.Ledger.PollInterval,
	})
	verifier, err := ledger.NewVerifier(client, ledger.VerifierOptions{
		Contract: conf.Ledger.Contract,
		ABI:      conf.Ledger.ABI,
	})
	if err != nil {
		return err
	}
	nb.verifier = verifier

	coordinator := voting.NewCoordinator(store, members, keyring, anchor, verifier)
	nb.service = registry.NewService(store, coordinator, verifier, registry.Options{
		RequiredVotes: conf.Council.RequiredVotes,
		ExplorerTxURL: conf.Ledger.ExplorerTxURL,
	})
	logger.Infow("registry started", "council", members.Size(), "requiredVotes", conf.Council.RequiredVotes,
		"storage", conf.Storage.Kind, "contract", conf.Ledger.Contract.Hex())
	return nil
}

func (nb *NodeBuilder) keyring(ctx context.Context) (council.Keyring, error) {
	static := council.NewStaticKeyring(nb.Config.Ledger.SignerKey)
	for id, key := range nb.Config.Council.MemberKeys {
		static.Add(id, key)
	}
	if nb.Config.Keystore.Path == "" {
		return static, nil
	}

	es, err := OpenKeystore(ctx, nb.Config.Keystore)
	if err != nil {
		return nil, err
	}
	nb.closers = append(nb.closers, es.Close)
	return council.NewStoredKeyring(es.EncryptedStore, static), nil
}

func (nb *NodeBuilder) ledgerClient(ctx context.Context) (ledger.Client, error) {
	if nb.LedgerClient != nil {
		return nb.LedgerClient, nil
	}
	if nb.Config.Ledger.RPCURL == "" {
		logger.Warnw("no ledger RPC configured; anchoring and verification are unavailable")
		return nil, nil
	}
	client, err := ledger.Dial(ctx, nb.Config.Ledger.RPCURL)
	if err != nil {
		return nil, err
	}
	nb.closers = append(nb.closers, func() error {
		client.Close()
		return nil
	})
	nb.LedgerClient = client
	return client, nil
}

// Keystore is an unlocked encrypted keystore and its backing datastore.
type Keystore struct {
	*storage.EncryptedStore
	ds datastore.Batching
}

func (k *Keystore) Close() error {
	return k.ds.Close()
}

// OpenKeystore opens the badger keystore at conf.Path and unlocks it.
func OpenKeystore(ctx context.Context, conf KeystoreConfig) (*Keystore, error) {
	if conf.Passphrase == "" {
		return nil, errors.New("keystore passphrase is required")
	}
	sc := storage.Config{Kind: "badger", Path: conf.Path}
	ds, err := sc.ToDatastore("keystore")
	if err != nil {
		return nil, errors.Wrap(err, "error opening keystore")
	}
	es := storage.EncryptedWrapper(ds)
	if err := es.Unlock(ctx, conf.Passphrase); err != nil {
		ds.Close()
		return nil, errors.Wrap(err, "error unlocking keystore")
	}
	return &Keystore{EncryptedStore: es, ds: ds}, nil
}

// ConfigDir returns (and creates) the per-namespace configuration directory.
func ConfigDir(namespace string) string {
	conf := configdir.New("adhikar", filepath.Join("registry", namespace))
	folders := conf.QueryFolders(configdir.Global)
	if err := os.MkdirAll(folders[0].Path, 0700); err != nil {
		panic(err)
	}
	return folders[0].Path
}

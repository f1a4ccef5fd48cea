// Command i2prouter wires the router-core packages into a running
// process: generate or load a local identity, stand up the netdb store,
// a tunnel pool, and a local destination, then run the periodic
// maintenance loop until signaled to stop. It is grounded on the
// teacher's cmd/tor-client/main.go: a sequence of small, named setup
// steps followed by one long-running service loop and signal-based
// shutdown, generalized from Tor's directory-bootstrap-then-circuit-
// build sequence to I2P's netdb-then-tunnel-pool-then-destination one.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-i2p/i2p-router-core/config"
	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/destination"
	"github.com/go-i2p/i2p-router-core/identity"
	"github.com/go-i2p/i2p-router-core/internal/rlog"
	"github.com/go-i2p/i2p-router-core/netdb"
	"github.com/go-i2p/i2p-router-core/reseed"
	"github.com/go-i2p/i2p-router-core/routerinfo"
	"github.com/go-i2p/i2p-router-core/tunnel"
)

// Version is set at build time via ldflags.
var Version = "dev"

// reseedServers is a small fixed fallback list; a production deployment
// would load this from config, per spec.md §6's options surface.
var reseedServers = []string{
	"https://reseed.i2p-projekt.de/",
	"https://i2p.mooo.com/netDb/",
}

func main() {
	logFile := setupLogging()
	defer func() { _ = logFile.Close() }()

	log := rlog.For("main")
	fmt.Printf("=== i2p-router-core %s ===\n", Version)

	opts := config.Default()
	keys := loadOrGenerateIdentity(log)
	selfHash := keys.Identity.Hash()

	store := netdb.New(selfHash, "")
	publishSelfRouterInfo(keys, opts, store, log)

	pool := tunnel.NewPool(selfHash, tunnel.PoolParams{
		InboundLength:          3,
		OutboundLength:         3,
		InboundQuantity:        2,
		OutboundQuantity:       2,
		InboundLengthVariance:  1,
		OutboundLengthVariance: 1,
	}, store)

	dest := destination.New(keys, config.DefaultDestinationParams(), pool, store)
	dest.Start()

	reseedIfNeeded(store, opts.NetID, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	log.Info("router started, entering maintenance loop")
	runMaintenanceLoop(store, dest, opts.NetID, stop, log)
	log.Info("shutdown complete")
}

func setupLogging() *os.File {
	logFile, err := os.OpenFile("i2prouter.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log file: %v\n", err)
		os.Exit(1)
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(io.MultiWriter(logFile, os.Stdout))
	rlog.SetOutput(logger)
	return logFile
}

// loadOrGenerateIdentity builds a fresh EdDSA25519 local router identity.
// On-disk persistence of the router.keys.dat bundle is the external
// collaborator's job, per spec.md's "deliberately out of scope" config
// surface; this only shows the in-memory shape.
func loadOrGenerateIdentity(log *logrus.Entry) *identity.PrivateKeys {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.WithError(err).Fatal("generate signing key")
	}

	encKey := make([]byte, 256)
	sigKey := make([]byte, 128)
	copy(sigKey[128-32:], pub)

	raw := make([]byte, 0, identity.StandardIdentitySize+4)
	raw = append(raw, encKey...)
	raw = append(raw, sigKey...)
	raw = append(raw, 5, 0, 4) // KEY cert, length 4
	raw = append(raw, byte(cryptoutil.SigEdDSA25519>>8), byte(cryptoutil.SigEdDSA25519))
	raw = append(raw, byte(identity.CryptoECIESX25519>>8), byte(identity.CryptoECIESX25519))

	id, _, err := identity.Parse(raw)
	if err != nil {
		log.WithError(err).Fatal("parse generated identity")
	}

	encPriv, err := cryptoutil.GenerateX25519()
	if err != nil {
		log.WithError(err).Fatal("generate encryption key")
	}
	encPrivPadded := make([]byte, 256)
	copy(encPrivPadded, encPriv.Private[:])

	log.WithField("hash", id.Hash().String()).Info("generated local identity")
	return &identity.PrivateKeys{
		Identity:             id,
		EncryptionPrivateKey: encPrivPadded,
		SigningPrivateKey:    priv,
	}
}

// publishSelfRouterInfo signs and stores this router's own descriptor in
// its local netdb, so path-selection callers see a populated self-entry
// even before any peer descriptors arrive.
func publishSelfRouterInfo(keys *identity.PrivateKeys, opts config.Options, store *netdb.Store, log *logrus.Entry) {
	l := routerinfo.NewLocalRouterInfo(keys, opts.NetID, "0.1.0")
	l.SetCapabilities(routerinfo.Capabilities{BandwidthTier: byte(opts.Bandwidth), Reachable: true, Floodfill: opts.Floodfill})

	if opts.SSU2Enabled {
		var staticKey, introKey [32]byte
		if kp, err := cryptoutil.GenerateX25519(); err == nil {
			staticKey = kp.Public
		}
		if kp, err := cryptoutil.GenerateX25519(); err == nil {
			introKey = kp.Public
		}
		l.AddSSU2Address(opts.Host, uint16(opts.SSU2Port), staticKey, introKey)
	}
	if opts.NTCP2Enabled {
		if kp, err := cryptoutil.GenerateX25519(); err == nil {
			l.AddNTCP2Address(opts.Host, uint16(opts.NTCP2Port), kp.Public)
		}
	}

	ri, _, err := l.Sign(time.Now())
	if err != nil {
		log.WithError(err).Fatal("sign local router info")
	}
	store.StoreRouterInfo(ri, time.Now())
}

func reseedIfNeeded(store *netdb.Store, netID int, log *logrus.Entry) {
	if !store.NeedsReseed() {
		return
	}
	log.WithField("known", store.KnownRouterCount()).Info("below MinKnownRouters, reseeding")
	for _, url := range reseedServers {
		added, err := store.Reseed(func() ([]*routerinfo.RouterInfo, error) {
			return reseed.Fetch(url, netID)
		}, time.Now())
		if err != nil {
			log.WithError(err).WithField("server", url).Warn("reseed attempt failed")
			continue
		}
		log.WithField("added", added).WithField("server", url).Info("reseed succeeded")
		return
	}
	log.Warn("all reseed servers failed")
}

// runMaintenanceLoop runs netdb and destination upkeep on a fixed tick
// until stop fires, mirroring the teacher's signal-driven shutdown
// pattern in runSOCKSProxy.
func runMaintenanceLoop(store *netdb.Store, dest *destination.Destination, netID int, stop <-chan os.Signal, log *logrus.Entry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			log.Info("shutdown signal received")
			return
		case now := <-ticker.C:
			dropped := store.ManageRouterInfos(now)
			droppedLS := store.ManageLeaseSets(now)
			store.RefreshExploratoryVector(now, false)
			dest.Cleanup(now)
			if err := dest.CheckPublishTimeout(now); err != nil {
				log.WithError(err).Warn("publish timeout check")
			}
			if dest.VerificationDue(now) {
				if err := dest.VerifyPublished(now, func(identity.Hash) ([]byte, error) {
					return nil, fmt.Errorf("no verification transport wired")
				}); err != nil {
					log.WithError(err).Debug("leaseset verification skipped")
				}
			}
			reseedIfNeeded(store, netID, log)
			log.WithField("dropped_routers", dropped).WithField("dropped_leasesets", droppedLS).Debug("maintenance tick")
		}
	}
}

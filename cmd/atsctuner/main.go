// Command atsctuner serves an HDHomeRun-compatible ATSC/DVB tuner gateway:
// it arbitrates a fixed pool of physical tuners across live viewing, DVR,
// and background EPG capture, decodes VCT/EIT/ETT guide data straight off
// the transport stream, and exposes discovery, streaming, and guide
// endpoints over HTTP. Grounded on cmd/plex-tuner/main.go's flag-parse,
// wire-everything-up, signal.Notify-then-block shape.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/snapetech/atsctuner/internal/arbiter"
	"github.com/snapetech/atsctuner/internal/channel"
	"github.com/snapetech/atsctuner/internal/channelconf"
	"github.com/snapetech/atsctuner/internal/config"
	"github.com/snapetech/atsctuner/internal/epgingest"
	"github.com/snapetech/atsctuner/internal/epgscan"
	"github.com/snapetech/atsctuner/internal/epgstore"
	"github.com/snapetech/atsctuner/internal/httpapi"
	"github.com/snapetech/atsctuner/internal/logging"
	"github.com/snapetech/atsctuner/internal/metrics"
	"github.com/snapetech/atsctuner/internal/session"
)

func main() {
	cfg := config.Load()
	logging.SetVerbose(cfg.VerboseLogging)

	channels, err := channelconf.Load(cfg.ChannelsConfPath)
	if err != nil {
		log.Fatalf("load channels config %q: %v", cfg.ChannelsConfPath, err)
	}
	coll := channel.NewCollection(channels)
	logging.Infof("loaded %d channels across %d frequencies from %s", coll.Len(), len(coll.Frequencies()), cfg.ChannelsConfPath)

	arb := arbiter.New(cfg.TunerCount, cfg.EnablePreemption)

	_, statErr := os.Stat(cfg.EPGStorePath)
	storeExisted := statErr == nil

	store, err := epgstore.Open(cfg.EPGStorePath)
	if err != nil {
		log.Fatalf("open EPG store %q: %v", cfg.EPGStorePath, err)
	}
	defer store.Close()

	reg := metrics.New()

	srv := httpapi.New()
	srv.Addr = ":" + strconv.Itoa(cfg.Port)
	srv.BaseURL = cfg.BaseURL
	if srv.BaseURL == "" {
		srv.BaseURL = "http://localhost" + srv.Addr
	}
	srv.DeviceID = cfg.DeviceID
	srv.FriendlyName = cfg.FriendlyName
	srv.TunerCount = cfg.TunerCount
	srv.Channels = coll
	srv.Arbiter = arb
	srv.Store = store
	srv.Metrics = reg
	srv.Spawn = liveSpawner(cfg)
	srv.DefaultCodec = cfg.TranscodeCodec
	srv.DefaultEngine = cfg.TranscodeMode
	srv.XMLTVSourceURL = cfg.XMLTVSourceURL

	overrides, err := session.LoadProfileOverrides(cfg.ProfileOverridesPath)
	if err != nil {
		logging.Infof("profile overrides disabled: load %q failed: %v", cfg.ProfileOverridesPath, err)
	} else if len(overrides) > 0 {
		logging.Infof("profile overrides loaded: %d entries from %s", len(overrides), cfg.ProfileOverridesPath)
	}
	srv.ProfileOverrides = overrides

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.EnableEPG {
		ingester := epgingest.New(store, coll)
		scanner := epgscan.New(arb, coll, epgSpawner(cfg), ingester.Sink)
		srv.Scanner = scanner
		go scanner.Run(ctx, storeExisted)
		go func() {
			if err := scanner.WaitInitialScan(ctx); err == nil {
				srv.SetHealthy()
			}
		}()
	} else {
		srv.SetHealthy()
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("listening on %s", srv.Addr)
		errCh <- srv.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Infof("received %s, shutting down", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Fatalf("http server: %v", err)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/fieldcapture/internal/async"
	"github.com/joseph-ayodele/fieldcapture/internal/common"
	"github.com/joseph-ayodele/fieldcapture/internal/export"
	"github.com/joseph-ayodele/fieldcapture/internal/ocr"
	"github.com/joseph-ayodele/fieldcapture/internal/repository"
	"github.com/joseph-ayodele/fieldcapture/internal/session"
	"github.com/joseph-ayodele/fieldcapture/internal/store"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg    *common.Config
	logger *slog.Logger

	kv       *store.SQLStore
	repo     *repository.SessionRepository
	exporter *export.Service
	queue    *async.ExportQueue

	caps     session.Capabilities
	text     *ocr.TesseractRecognizer
	barcodes *ocr.ZBarRecognizer
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	logger := slog.Default()

	cfg, err := common.LoadConfigFile(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.inmem {
		cfg.Store.Driver = "sqlite"
		cfg.Store.DSN = ":memory:"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.DSN == "" {
		if err := (store.LocalFileStore{}).EnsureDir(cfg.Files.DataDir); err != nil {
			return nil, err
		}
	}

	kv, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	repo, err := repository.NewSessionRepository(kv, store.LocalFileStore{}, cfg.Files.ImagesDir, logger)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("session repository: %w", err)
	}

	ocrCfg := ocr.Config{
		Tesseract:        cfg.OCR.Tesseract,
		ZBarImg:          cfg.Barcode.ZBarImg,
		TesseractLang:    cfg.OCR.Lang,
		TessdataDir:      cfg.OCR.TessdataDir,
		PSM:              cfg.OCR.PSM,
		OEM:              cfg.OCR.OEM,
		HeicConverter:    cfg.OCR.HeicConverter,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
	}
	avail := ocr.Detect(ocrCfg)
	caps := session.Capabilities{
		TextRecognition: avail.Tesseract,
		BarcodeDecoding: avail.ZBarImg,
		// the live feed is a line stream, always readable
		LiveBarcode: true,
	}
	logger.Info("recognizer capabilities", "text", caps.TextRecognition, "barcode", caps.BarcodeDecoding)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		kv:       kv,
		repo:     repo,
		exporter: export.NewService(repo, cfg.Files.ExportDir, logger),
		caps:     caps,
		text:     ocr.NewTesseractRecognizer(ocrCfg, logger),
		barcodes: ocr.NewZBarRecognizer(ocrCfg, logger),
	}
	if cfg.Export.Enabled {
		a.queue = async.NewExportQueue(a.exporter, logger,
			async.WithWorkers(cfg.Export.Workers),
			async.WithQueueSize(cfg.Export.QueueSize),
			async.WithJobTimeout(cfg.Export.Timeout),
		)
	}
	return a, nil
}

func (a *app) close() {
	if a.queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Export.Timeout+5*time.Second)
		a.queue.Shutdown(ctx)
		cancel()
	}
	a.kv.Close()
}

// newReconciler builds a reconciler wired to the repository and export queue.
func (a *app) newReconciler() *session.Reconciler {
	opts := []session.Option{
		session.WithLogger(a.logger),
		session.WithBarcodeRecognizer(a.barcodes),
		session.WithAnalyzeTimeout(a.cfg.OCR.Timeout),
	}
	if a.queue != nil {
		opts = append(opts, session.WithNotifier(a.queue.Notify))
	}
	return session.NewReconciler(a.caps, a.text, a.repo, opts...)
}

// resume loads a stored session into rec when id is set.
func (a *app) resume(ctx context.Context, rec *session.Reconciler, id string) error {
	if id == "" {
		return nil
	}
	if err := common.ValidateSessionID(id); err != nil {
		return err
	}
	stored, err := a.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.Resume(stored)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

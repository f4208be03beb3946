// Command extract runs the invoice pipeline over local files and prints the
// reconciled records, optionally writing them to an XLSX workbook.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/facturaIA/invoice-extraction-service/internal/ai"
	"github.com/facturaIA/invoice-extraction-service/internal/auth"
	"github.com/facturaIA/invoice-extraction-service/internal/classify"
	"github.com/facturaIA/invoice-extraction-service/internal/config"
	"github.com/facturaIA/invoice-extraction-service/internal/db"
	"github.com/facturaIA/invoice-extraction-service/internal/errs"
	"github.com/facturaIA/invoice-extraction-service/internal/export"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
	"github.com/facturaIA/invoice-extraction-service/internal/ocr"
	"github.com/facturaIA/invoice-extraction-service/internal/pipeline"
	"github.com/facturaIA/invoice-extraction-service/internal/reconcile"
	"github.com/facturaIA/invoice-extraction-service/internal/services"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

type outcome struct {
	File       string                   `json:"file"`
	Invoice    *models.InvoiceRecord    `json:"invoice,omitempty"`
	Validation *models.ValidationResult `json:"validation,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Kind       string                   `json:"kind,omitempty"`
	Seconds    float64                  `json:"seconds"`
}

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		cfgPath     = flag.String("config", "config.yaml", "configuration file")
		dir         = flag.String("dir", "", "directory of invoices to process")
		out         = flag.String("xlsx", "", "write the records to this XLSX file")
		concurrency = flag.Int("j", 2, "documents processed in parallel")
		noClassify  = flag.Bool("no-classify", false, "skip classification code resolution")
		token       = flag.String("token", "", "print a bearer token for this user id and exit")
		role        = flag.String("role", "operator", "role embedded in -token")
		hashPass    = flag.String("hash-password", "", "print the bcrypt hash for an operator account and exit")
	)
	flag.Parse()

	if *hashPass != "" {
		hash, err := auth.HashPassword(*hashPass)
		if err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(lvl)
	}
	logrus.SetOutput(os.Stderr)
	log := logrus.NewEntry(logrus.StandardLogger())

	if *token != "" {
		m, err := auth.New(cfg.Auth, log)
		if err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		signed, err := m.GenerateToken(*token, *role)
		if err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(signed)
		return
	}

	files, err := collect(*dir, flag.Args())
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		printError("Error: no PDF, PNG or JPEG files given (use -dir or list files)\n")
		os.Exit(1)
	}

	ctx := context.Background()
	runner := ocr.ExecRunner{Log: log}
	var primary ocr.Loader
	if cfg.OCR.PrimaryEngine == "gemini" && cfg.AI.Gemini.APIKey != "" {
		primary = ocr.GeminiLoader(cfg.AI.Gemini.APIKey, cfg.OCR.PrimaryModel)
	}
	registry := ocr.NewRegistry(ctx, cfg.OCR, primary, ocr.NewTesseractOCR(cfg.OCR, runner), ocr.Options{
		Rasterizer: ocr.NewRasterizer(cfg.OCR, runner),
		Log:        log,
	})
	defer registry.Close()

	reasoner, err := ai.NewReasoner(ctx, cfg.AI)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if c, ok := reasoner.(io.Closer); ok {
		defer c.Close()
	}
	parser, err := ai.NewParser(reasoner, cfg.AI.ParseTimeout, log)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	var resolver *classify.Resolver
	if !*noClassify {
		var refs classify.ReferenceDataset
		if pool, err := db.Open(ctx, db.DatabaseURL()); err == nil {
			defer pool.Close()
			refs = db.NewReferenceStore(pool, log)
		}
		resolver = classify.NewResolver(reasoner, classify.NewReferenceCache(refs, cfg.Classify.ReferenceLimit, log), cfg.Classify, nil, log)
	}
	proc := pipeline.New(registry, parser, reconcile.New(cfg.Reconcile, log), resolver, pipeline.Options{
		Language:  cfg.OCR.Language,
		Validator: services.NewRecordValidator(cfg.Classify.DefaultCode),
		Log:       log,
	})

	results := run(ctx, proc, files, *concurrency, log)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failed := 0
	var entries []export.Entry
	for _, r := range results {
		if r.Invoice == nil {
			failed++
		} else {
			entries = append(entries, export.Entry{Source: filepath.Base(r.File), Record: *r.Invoice})
		}
		if err := enc.Encode(r); err != nil {
			printError("Error: %v\n", err)
		}
	}

	if *out != "" && len(entries) > 0 {
		if err := writeWorkbook(*out, entries); err != nil {
			printError("Error: %v\n", err)
			os.Exit(1)
		}
		log.WithFields(logrus.Fields{"path": *out, "invoices": len(entries)}).Info("workbook written")
	}
	if failed > 0 {
		os.Exit(2)
	}
}

// run processes files with at most n in flight. A failed document is
// reported in its outcome and does not stop the others.
func run(ctx context.Context, proc *pipeline.Processor, files []string, n int, log *logrus.Entry) []outcome {
	if n < 1 {
		n = 1
	}
	results := make([]outcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for i, path := range files {
		g.Go(func() error {
			start := time.Now()
			results[i] = outcome{File: path}
			data, err := os.ReadFile(path)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			doc := models.Document{
				Filename:    filepath.Base(path),
				ContentType: contentTypes[strings.ToLower(filepath.Ext(path))],
				Data:        data,
			}
			res, err := proc.Process(gctx, doc)
			results[i].Seconds = time.Since(start).Seconds()
			if err != nil {
				log.WithError(err).WithField("file", path).Warn("extraction failed")
				results[i].Error = err.Error()
				results[i].Kind = string(errs.KindOf(err))
				return nil
			}
			results[i].Invoice = &res.Invoice
			results[i].Validation = res.Validation
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// collect returns the supported files under dir plus any listed paths.
func collect(dir string, args []string) ([]string, error) {
	var files []string
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, ok := contentTypes[strings.ToLower(filepath.Ext(e.Name()))]; ok {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
		sort.Strings(files)
	}
	for _, a := range args {
		if _, ok := contentTypes[strings.ToLower(filepath.Ext(a))]; !ok {
			return nil, fmt.Errorf("unsupported file %s", a)
		}
		files = append(files, a)
	}
	return files, nil
}

func writeWorkbook(path string, entries []export.Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteWorkbook(f, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

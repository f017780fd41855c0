package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-reader/internal/normalize"
	"github.com/zombor/receipt-reader/internal/ocr"
	"github.com/zombor/receipt-reader/internal/receipt"
	"github.com/zombor/receipt-reader/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	storageBackend string
	storagePath    string
	s3             receipt.S3Config

	scannerType   string
	ocrLang       string
	tesseractPath string
	maxDimension  int
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A .env file is optional; real environment variables take precedence
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	var cfg config
	flags := ff.NewFlagSet("receipt-reader")
	var (
		port     = flags.IntLong("port", 8080, "HTTP server port")
		dbPath   = flags.StringLong("db", "receipt-reader.db", "Database file path")
		authUser = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		_        = flags.BoolLong("version", "Show version information")
	)
	flags.StringVar(&cfg.storageBackend, 0, "storage-backend", "local", "File storage backend: 'local' or 's3'")
	flags.StringVar(&cfg.storagePath, 0, "storage", "./receipts", "Storage directory path for the local backend")
	flags.StringVar(&cfg.s3.Bucket, 0, "s3-bucket", "", "S3 bucket name")
	flags.StringVar(&cfg.s3.Prefix, 0, "s3-prefix", "receipts", "S3 key prefix")
	flags.StringVar(&cfg.s3.Region, 0, "s3-region", "", "S3 region (defaults to the AWS configuration)")
	flags.StringVar(&cfg.s3.AccessKey, 0, "aws-access-key", "", "AWS access key (defaults to the AWS credential chain)")
	flags.StringVar(&cfg.s3.SecretKey, 0, "aws-secret-key", "", "AWS secret key")
	flags.StringVar(&cfg.scannerType, 0, "scanner", "local", "Scanner type: 'local', 'gemini' or 'ollama'")
	flags.StringVar(&cfg.ocrLang, 0, "ocr-lang", ocr.DefaultLanguages, "Tesseract languages for the local scanner")
	flags.StringVar(&cfg.tesseractPath, 0, "tesseract-path", "tesseract", "Tesseract executable used as the fallback recognizer")
	flags.IntVar(&cfg.maxDimension, 0, "max-dimension", scanning.DefaultMaxDimension, "Longest image side before reading, in pixels")
	flags.StringVar(&cfg.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	flags.StringVar(&cfg.geminiModel, 0, "gemini-model", "gemini-2.0-flash", "Google Gemini model name")
	flags.StringVar(&cfg.ollamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	flags.StringVar(&cfg.ollamaModel, 0, "ollama-model", "qwen2.5vl", "Ollama vision model name")

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_READER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	scanner, err := newScanner(cfg)
	if err != nil {
		slog.Error("Failed to initialize scanner", "type", cfg.scannerType, "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "backend", cfg.storageBackend)
	store, err := newStorage(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	receiptService := receipt.NewService(db, scanner, store)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-serverErr:
		if err != nil {
			slog.Error("Server error", "error", err)
		}
		return
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down cleanly", "error", err)
	}
}

// newScanner builds the receipt reader selected by cfg.scannerType
func newScanner(cfg config) (scanning.Scanner, error) {
	switch cfg.scannerType {
	case "local":
		slog.Info("Initializing local scanner...", "languages", cfg.ocrLang, "tesseract", cfg.tesseractPath)
		engines := ocr.NewCache(func() (ocr.LineRecognizer, error) {
			engine, err := ocr.NewTesseractLines(cfg.ocrLang)
			if err != nil {
				return nil, err
			}
			return engine, nil
		})
		extractor := ocr.NewExtractor(engines, ocr.NewTesseractCLI(cfg.tesseractPath, cfg.ocrLang))
		return &localScanner{
			Local:   scanning.NewLocal(normalize.New(), extractor, cfg.maxDimension),
			engines: engines,
		}, nil
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		return scanning.NewGemini(apiKey, cfg.geminiModel, cfg.maxDimension)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel, cfg.maxDimension)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: want local, gemini or ollama", cfg.scannerType)
	}
}

// localScanner releases the cached recognition engine on Close
type localScanner struct {
	*scanning.Local
	engines *ocr.Cache
}

func (s *localScanner) Close() error {
	return errors.Join(s.Local.Close(), s.engines.Close())
}

// newStorage builds the file store selected by cfg.storageBackend
func newStorage(ctx context.Context, cfg config) (receipt.Storage, error) {
	switch cfg.storageBackend {
	case "local":
		return receipt.NewLocalStorage(cfg.storagePath)
	case "s3":
		return receipt.NewS3Storage(ctx, cfg.s3)
	default:
		return nil, fmt.Errorf("invalid storage backend %q: want local or s3", cfg.storageBackend)
	}
}

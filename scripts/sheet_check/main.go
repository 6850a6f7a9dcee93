package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/academy-import-api/internal/importer"
	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/internal/repository"
	"github.com/noah-isme/academy-import-api/pkg/config"
)

// errInvalidRows makes the command exit non-zero once the report has been printed.
var errInvalidRows = errors.New("sheet has invalid rows")

type checkOptions struct {
	baseURL  string
	kind     string
	token    string
	photoDir string
	timeout  time.Duration
}

func main() {
	cmd := newCheckCmd()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errInvalidRows) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// newCheckCmd reviews a spreadsheet against the live academy data without writing anything,
// so operators can fix a file before uploading it.
func newCheckCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:           "sheet_check <file.xlsx|file.xls|file.csv>",
		Short:         "Dry-run review of an import spreadsheet",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.baseURL, "academy-base", "http://localhost:8000/api", "Academy API base URL")
	cmd.Flags().StringVar(&opts.kind, "kind", string(models.ImportKindResultCreate), "student_import, result_create or result_update")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("ACADEMY_TOKEN"), "Bearer token used for lookups")
	cmd.Flags().StringVar(&opts.photoDir, "photos", "", "Directory holding the photos a student sheet references")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Academy API timeout")
	return cmd
}

func runCheck(ctx context.Context, opts checkOptions, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	importKind := models.ImportKind(opts.kind)
	pipeline, err := importer.NewPipeline(importKind, nil, validator.New())
	if err != nil {
		return fmt.Errorf("unsupported kind: %w", err)
	}

	academy := repository.NewAcademyRepository(config.AcademyConfig{BaseURL: opts.baseURL, Timeout: opts.timeout}, nil, nil)
	pipeline.Resolver = importer.NewResolver(academy, nil)
	ctx = repository.WithBearerToken(ctx, opts.token)

	refs, err := importer.LoadReferences(ctx, academy, importKind)
	if err != nil {
		return fmt.Errorf("failed to load reference data: %w", err)
	}
	photos, err := listPhotos(opts.photoDir)
	if err != nil {
		return fmt.Errorf("failed to list photos: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	verdicts, err := pipeline.Prepare(ctx, importer.Upload{Filename: filepath.Base(path), Body: file, Photos: photos}, refs)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	printReport(verdicts)
	fmt.Println(importer.Summary(verdicts))
	if len(importer.ValidOnly(verdicts)) != len(verdicts) {
		return errInvalidRows
	}
	return nil
}

func listPhotos(dir string) ([]importer.Photo, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	photos := make([]importer.Photo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		photos = append(photos, importer.Photo{Filename: entry.Name(), Path: filepath.Join(dir, entry.Name())})
	}
	return photos, nil
}

func printReport(verdicts []models.ValidationResult) {
	fmt.Println("Sheet Check Report")
	fmt.Println("==================")
	for _, v := range verdicts {
		status := "OK"
		if !v.IsValid {
			status = "INVALID"
		}
		fmt.Printf("[%s] row %d %s\n", status, v.Row, v.Data.Identifier())
		for _, msg := range v.Errors {
			fmt.Printf("  error: %s\n", msg)
		}
		for _, msg := range v.Warnings {
			fmt.Printf("  warning: %s\n", strings.TrimSpace(msg))
		}
	}
}

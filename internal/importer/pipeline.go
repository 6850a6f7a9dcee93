package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/pkg/spreadsheet"
)

// Pipeline wires the import stages for one kind: parse, map, resolve, validate, then execute
// once the reviewed rows are confirmed.
type Pipeline struct {
	Kind     models.ImportKind
	Schema   Schema
	Resolver *Resolver
	Validate *validator.Validate
}

// NewPipeline builds the pipeline of a template-backed kind.
func NewPipeline(kind models.ImportKind, resolver *Resolver, validate *validator.Validate) (*Pipeline, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	if validate == nil {
		validate = validator.New()
	}
	if resolver == nil {
		resolver = NewResolver(nil, nil)
	}
	return &Pipeline{Kind: kind, Schema: schema, Resolver: resolver, Validate: validate}, nil
}

// Upload is a spreadsheet handed to Prepare.
type Upload struct {
	Filename string
	Body     io.Reader
	Photos   []Photo
}

// Prepare parses the upload and returns one verdict per non-blank data row, in file order.
func (p *Pipeline) Prepare(ctx context.Context, upload Upload, refs ReferenceData) ([]models.ValidationResult, error) {
	rows, err := spreadsheet.Parse(upload.Filename, upload.Body)
	if err != nil {
		return nil, err
	}
	return p.Review(ctx, rows, upload.Photos, refs), nil
}

// Review runs the stages after parsing.
func (p *Pipeline) Review(ctx context.Context, rows []spreadsheet.Row, photos []Photo, refs ReferenceData) []models.ValidationResult {
	mapped := MapRows(p.Schema, rows)
	if p.Kind == models.ImportKindStudent {
		MatchPhotos(mapped, photos)
	} else {
		p.Resolver.Resolve(ctx, mapped, refs)
	}
	return Validate(p.Kind, mapped, refs, p.Validate)
}

// Execute writes the valid rows of results with the operation of the pipeline's kind.
func (p *Pipeline) Execute(ctx context.Context, results []models.ValidationResult, writer Writer, progress ProgressFunc) models.BulkOutcome {
	return Execute(ctx, ValidOnly(results), p.Kind.Operation(), writer, progress)
}

// ValidOnly keeps the rows whose verdict is valid, in order.
func ValidOnly(results []models.ValidationResult) []models.ValidationResult {
	valid := make([]models.ValidationResult, 0, len(results))
	for _, r := range results {
		if r.IsValid {
			valid = append(valid, r)
		}
	}
	return valid
}

// Summary is a short count line used in logs.
func Summary(results []models.ValidationResult) string {
	valid := len(ValidOnly(results))
	return fmt.Sprintf("%d rows, %d valid, %d invalid", len(results), valid, len(results)-valid)
}

package importer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Photo is an image uploaded next to a student spreadsheet.
type Photo struct {
	Filename string
	Path     string
}

// MatchPhotos links each student row's photo reference to one uploaded photo. An exact filename
// match (ignoring case) wins; otherwise the first photo whose name contains the reference is used
// and a warning is left when more than one photo contains it.
func MatchPhotos(rows []MappedRow, photos []Photo) {
	for _, row := range rows {
		record := row.Record.Student
		if record == nil {
			continue
		}
		record.PhotoFile = nil
		record.PhotoWarning = ""
		if record.PhotoReference == nil || len(photos) == 0 {
			continue
		}
		ref := strings.ToLower(strings.TrimSpace(*record.PhotoReference))
		if ref == "" {
			continue
		}

		var exact *Photo
		var partial []Photo
		for i := range photos {
			name := strings.ToLower(filepath.Base(photos[i].Filename))
			if name == ref {
				exact = &photos[i]
				break
			}
			if strings.Contains(name, ref) {
				partial = append(partial, photos[i])
			}
		}

		switch {
		case exact != nil:
			path := exact.Path
			record.PhotoFile = &path
		case len(partial) == 0:
			record.PhotoWarning = fmt.Sprintf("no uploaded photo matches %q", *record.PhotoReference)
		default:
			path := partial[0].Path
			record.PhotoFile = &path
			if len(partial) > 1 {
				record.PhotoWarning = fmt.Sprintf("photo %q matches %d files, using %q",
					*record.PhotoReference, len(partial), partial[0].Filename)
			}
		}
	}
}

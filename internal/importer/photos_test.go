package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-import-api/internal/models"
)

func TestMatchPhotos(t *testing.T) {
	photos := []Photo{
		{Filename: "jane_doe_2024.jpg", Path: "/uploads/1"},
		{Filename: "Jane.JPG", Path: "/uploads/2"},
		{Filename: "amit_front.png", Path: "/uploads/3"},
		{Filename: "amit_side.png", Path: "/uploads/4"},
	}
	rows := []MappedRow{
		studentRow(2, models.StudentRecord{PhotoReference: strPtr("jane.jpg")}),
		studentRow(3, models.StudentRecord{PhotoReference: strPtr("amit")}),
		studentRow(4, models.StudentRecord{PhotoReference: strPtr("ravi.png")}),
		studentRow(5, models.StudentRecord{}),
		studentRow(6, models.StudentRecord{PhotoReference: strPtr("2024")}),
	}

	MatchPhotos(rows, photos)

	jane := rows[0].Record.Student
	require.NotNil(t, jane.PhotoFile)
	assert.Equal(t, "/uploads/2", *jane.PhotoFile)
	assert.Empty(t, jane.PhotoWarning)

	amit := rows[1].Record.Student
	require.NotNil(t, amit.PhotoFile)
	assert.Equal(t, "/uploads/3", *amit.PhotoFile)
	assert.Equal(t, `photo "amit" matches 2 files, using "amit_front.png"`, amit.PhotoWarning)

	ravi := rows[2].Record.Student
	assert.Nil(t, ravi.PhotoFile)
	assert.Equal(t, `no uploaded photo matches "ravi.png"`, ravi.PhotoWarning)

	assert.Nil(t, rows[3].Record.Student.PhotoFile)
	assert.Empty(t, rows[3].Record.Student.PhotoWarning)

	single := rows[4].Record.Student
	require.NotNil(t, single.PhotoFile)
	assert.Equal(t, "/uploads/1", *single.PhotoFile)
	assert.Empty(t, single.PhotoWarning)
}

func TestMatchPhotosWithoutUploads(t *testing.T) {
	rows := []MappedRow{studentRow(2, models.StudentRecord{PhotoReference: strPtr("jane.jpg")})}

	MatchPhotos(rows, nil)

	assert.Nil(t, rows[0].Record.Student.PhotoFile)
	assert.Empty(t, rows[0].Record.Student.PhotoWarning)
}

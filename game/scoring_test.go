package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"petitbacserver/models"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		answers   models.Answers
		letter    string
		wantScore int
		wantValid int
	}{
		{
			name:      "only matching answers count",
			answers:   models.Answers{"pays": "France", "ville": "Paris"},
			letter:    "F",
			wantScore: 10,
			wantValid: 1,
		},
		{
			name:      "case and accents are ignored",
			answers:   models.Answers{"animal": "éléphant", "pays": "Espagne", "objet": "  entonnoir"},
			letter:    "E",
			wantScore: 30,
			wantValid: 3,
		},
		{
			name:      "lower-case letter",
			answers:   models.Answers{"ville": "Lyon"},
			letter:    "l",
			wantScore: 10,
			wantValid: 1,
		},
		{
			name:      "empty answers score nothing",
			answers:   models.Answers{"pays": "", "ville": "   "},
			letter:    "P",
			wantScore: 0,
			wantValid: 0,
		},
		{
			name:    "nil answers",
			answers: nil,
			letter:  "A",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, valid := Score(tt.answers, tt.letter)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantValid, valid)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "elephant", Normalize(" Éléphant "))
	assert.Equal(t, "creme brulee", Normalize("Crème Brûlée"))
	assert.Equal(t, "", Normalize("   "))
}

package models

// 設定値の上限と下限
const (
	MinTimeLimit  = 10
	MaxTimeLimit  = 300
	MinMaxPlayers = 1
	MaxMaxPlayers = 27
	MinRounds     = 1
	MaxRounds     = 10
)

// DefaultCategories は選択可能な標準カテゴリーです。
var DefaultCategories = []Category{
	{ID: "pays", Label: "Pays"},
	{ID: "ville", Label: "Ville"},
	{ID: "animal", Label: "Animal"},
	{ID: "metier", Label: "Métier"},
	{ID: "fruit", Label: "Fruit/Légume"},
	{ID: "celebrite", Label: "Célébrité"},
	{ID: "marque", Label: "Marque"},
	{ID: "objet", Label: "Objet"},
	{ID: "sport", Label: "Sport"},
}

// DefaultSettings returns the lobby defaults: 60 seconds, 4 players, 3 rounds
// and the first six standard categories.
func DefaultSettings() Settings {
	return Settings{
		TimeLimit:  60,
		MaxPlayers: 4,
		Rounds:     3,
		Categories: append([]Category(nil), DefaultCategories[:6]...),
	}
}

// Normalize clamps the numeric settings into their allowed ranges. Zero values
// fall back to the defaults.
func (s Settings) Normalize() Settings {
	d := DefaultSettings()
	if s.TimeLimit == 0 {
		s.TimeLimit = d.TimeLimit
	}
	if s.MaxPlayers == 0 {
		s.MaxPlayers = d.MaxPlayers
	}
	if s.Rounds == 0 {
		s.Rounds = d.Rounds
	}
	if len(s.Categories) == 0 {
		s.Categories = d.Categories
	}
	s.TimeLimit = clamp(s.TimeLimit, MinTimeLimit, MaxTimeLimit)
	s.MaxPlayers = clamp(s.MaxPlayers, MinMaxPlayers, MaxMaxPlayers)
	s.Rounds = clamp(s.Rounds, MinRounds, MaxRounds)
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

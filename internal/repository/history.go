package repository

import (
	"streamwatch/internal/db"
	"streamwatch/internal/model"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) Save(record model.CopyRecord) error {
	history := model.NewHistory(record)
	return db.DB.Create(&history).Error
}

type Stats struct {
	Total    int64 `json:"total"`
	Copied   int64 `json:"copied"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
	Verified int64 `json:"verified"`
	Bytes    int64 `json:"bytes"`
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	counts := []struct {
		outcome model.Outcome
		dst     *int64
	}{
		{model.OutcomeCopied, &stats.Copied},
		{model.OutcomeSkipped, &stats.Skipped},
		{model.OutcomeFailed, &stats.Failed},
	}
	for _, c := range counts {
		if err := db.DB.Model(&model.History{}).
			Where("outcome = ?", c.outcome).
			Count(c.dst).Error; err != nil {
			return stats, err
		}
	}

	if err := db.DB.Model(&model.History{}).
		Where("outcome = ? AND verification = ?", model.OutcomeCopied, model.VerifyPassed).
		Count(&stats.Verified).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("outcome = ?", model.OutcomeCopied).
		Select("COALESCE(SUM(size), 0)").
		Scan(&stats.Bytes).Error; err != nil {
		return stats, err
	}

	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Order("copied_at desc").
		Order("id desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetFailed() ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Where("outcome = ?", model.OutcomeFailed).
		Order("copied_at desc").
		Find(&histories)

	return histories, result.Error
}

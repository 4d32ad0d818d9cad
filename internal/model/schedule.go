package model

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule описывает задачу, отправляемую в диспетчер по расписанию
type Schedule struct {
	Name    string         `yaml:"name" json:"name"`
	Spec    string         `yaml:"spec" json:"spec"`
	Type    string         `yaml:"type" json:"type"`
	Payload map[string]any `yaml:"payload" json:"payload,omitempty"`
}

// Validate проверяет расписание
func (s Schedule) Validate() error {
	var errors ValidationErrors

	if err := ValidateRequired("name", s.Name); err != nil {
		errors = append(errors, err.(ValidationError))
	}
	if err := ValidateRequired("type", s.Type); err != nil {
		errors = append(errors, err.(ValidationError))
	}
	if s.Spec == "" {
		errors = append(errors, ValidationError{Field: "spec", Message: "cron spec is required"})
	} else if _, err := cron.ParseStandard(s.Spec); err != nil {
		errors = append(errors, ValidationError{Field: "spec", Message: err.Error()})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

// ScheduleInfo снимок статистики расписания
type ScheduleInfo struct {
	Name          string     `json:"name"`
	Spec          string     `json:"spec"`
	Type          string     `json:"type"`
	LastRun       *time.Time `json:"last_run"`
	NextRun       *time.Time `json:"next_run"`
	RunCount      int        `json:"run_count"`
	AcceptedCount int        `json:"accepted_count"`
	RejectedCount int        `json:"rejected_count"`
	LastError     string     `json:"last_error"`
}

// ScheduleStats статистика отправок по расписанию
type ScheduleStats struct {
	mu   sync.Mutex
	info ScheduleInfo
}

// NewScheduleStats создает статистику для расписания
func NewScheduleStats(s Schedule) *ScheduleStats {
	return &ScheduleStats{info: ScheduleInfo{Name: s.Name, Spec: s.Spec, Type: s.Type}}
}

// UpdateRunStats фиксирует результат очередной отправки
func (s *ScheduleStats) UpdateRunStats(accepted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info.RunCount++
	if accepted {
		s.info.AcceptedCount++
		s.info.LastError = ""
	} else {
		s.info.RejectedCount++
		if err != nil {
			s.info.LastError = err.Error()
		}
	}
	now := time.Now()
	s.info.LastRun = &now
}

// Snapshot возвращает копию статистики с временем следующего запуска
func (s *ScheduleStats) Snapshot(next time.Time) ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := s.info
	if !next.IsZero() {
		info.NextRun = &next
	}
	return info
}

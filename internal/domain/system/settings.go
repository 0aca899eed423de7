package system

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"panel-server-go/internal/domain/auth/model"
	"panel-server-go/internal/platform/errors"
	"panel-server-go/internal/utils"
)

// Keys of the settings rows.
const (
	SettingNotification       = "notification"
	SettingRemoveLogFrequency = "removeLogFrequency"
)

const (
	testNotifyTitle   = "青龙"
	testNotifyContent = "【蛟龙】测试通知 https://t.me/jiao_long"
	logRemoveCronName = "删除日志"
)

// ErrNotifyFailed is returned when the test notification for a new channel fails.
var ErrNotifyFailed = stderrors.New("通知发送失败，请检查参数")

// SettingsRepository persists single-row settings keyed by kind.
type SettingsRepository interface {
	Load(ctx context.Context, kind string, out any) (bool, error)
	Save(ctx context.Context, kind string, value any) (uint, error)
}

// ChannelTester sends a test message through a not yet saved channel.
type ChannelTester interface {
	TestNotify(ctx context.Context, info model.NotificationInfo, title, content string) error
}

// CronJob describes a panel-managed scheduled command.
type CronJob struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Command  string `json:"command"`
	Schedule string `json:"schedule"`
}

// Scheduler registers and cancels scheduled commands.
type Scheduler interface {
	CancelSchedule(ctx context.Context, job CronJob) error
	GenerateSchedule(ctx context.Context, job CronJob) error
}

// NotificationResult is returned after a channel was verified and saved.
type NotificationResult struct {
	model.NotificationInfo
	ID   uint   `json:"id"`
	Code string `json:"code"`
}

// Settings manages the notification channel and log retention.
type Settings struct {
	repo      SettingsRepository
	tester    ChannelTester
	scheduler Scheduler
	logger    Logger

	mu sync.Mutex
}

// Logger provides the minimal logging contract required by the system domain.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// NewSettings wires a Settings service.
func NewSettings(repo SettingsRepository, tester ChannelTester, scheduler Scheduler, logger Logger) *Settings {
	return &Settings{repo: repo, tester: tester, scheduler: scheduler, logger: logger}
}

// NotificationMode returns the saved channel, or an empty one.
func (s *Settings) NotificationMode(ctx context.Context) (model.NotificationInfo, error) {
	var info model.NotificationInfo
	if _, err := s.repo.Load(ctx, SettingNotification, &info); err != nil {
		return model.NotificationInfo{}, err
	}
	return info, nil
}

// UpdateNotificationMode saves info after a successful test message through it.
func (s *Settings) UpdateNotificationMode(ctx context.Context, info model.NotificationInfo) (NotificationResult, error) {
	if err := s.tester.TestNotify(ctx, info, testNotifyTitle, testNotifyContent); err != nil {
		s.logger.Warn("测试通知发送失败 type=%s: %v", info.Type, err)
		return NotificationResult{}, ErrNotifyFailed
	}

	code, err := utils.RandomDigits(6)
	if err != nil {
		return NotificationResult{}, errors.Wrap(errors.KindDomain, "settings.notification", "failed to generate code", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.repo.Save(ctx, SettingNotification, info)
	if err != nil {
		return NotificationResult{}, err
	}
	s.logger.Info("通知方式已更新 type=%s", info.Type)
	return NotificationResult{NotificationInfo: info, ID: id, Code: code}, nil
}

// LogRemoveFrequency returns the saved retention.
func (s *Settings) LogRemoveFrequency(ctx context.Context) (model.LogRemoveFrequency, error) {
	var freq model.LogRemoveFrequency
	if _, err := s.repo.Load(ctx, SettingRemoveLogFrequency, &freq); err != nil {
		return model.LogRemoveFrequency{}, err
	}
	return freq, nil
}

// UpdateLogRemoveFrequency saves the retention in days and reschedules the
// removal job. Zero only cancels it.
func (s *Settings) UpdateLogRemoveFrequency(ctx context.Context, days int) (CronJob, error) {
	if days < 0 {
		return CronJob{}, errors.New(errors.KindDomain, "settings.log_remove", "frequency must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.repo.Save(ctx, SettingRemoveLogFrequency, model.LogRemoveFrequency{Frequency: days})
	if err != nil {
		return CronJob{}, err
	}
	job := LogRemovalJob(id, days)
	if err := s.scheduler.CancelSchedule(ctx, job); err != nil {
		return CronJob{}, errors.Wrap(errors.KindDomain, "settings.log_remove", "failed to cancel schedule", err)
	}
	if days > 0 {
		if err := s.scheduler.GenerateSchedule(ctx, job); err != nil {
			return CronJob{}, errors.Wrap(errors.KindDomain, "settings.log_remove", "failed to schedule", err)
		}
	}
	s.logger.Info("日志删除频率已更新为 %d 天", days)
	return job, nil
}

// LogRemovalJob is the cron entry removing logs older than days, run at 23:05 every days days.
func LogRemovalJob(id uint, days int) CronJob {
	return CronJob{
		ID:       id,
		Name:     logRemoveCronName,
		Command:  fmt.Sprintf("ql rmlog %d", days),
		Schedule: fmt.Sprintf("5 23 */%d * *", days),
	}
}

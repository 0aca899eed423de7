package system

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/hashicorp/go-version"
	"golang.org/x/sync/singleflight"

	"panel-server-go/internal/platform/errors"
)

var (
	versionPattern   = regexp.MustCompile(`export const version = '(.*)';`)
	changeLogPattern = regexp.MustCompile("(?s)export const changeLog = `(.*?)`;")
)

const maxVersionFileSize = 1 << 20

// UpdateInfo reports whether a newer release is published.
type UpdateInfo struct {
	HasNewVersion bool   `json:"hasNewVersion"`
	LastVersion   string `json:"lastVersion"`
	LastLog       string `json:"lastLog"`
}

// UpdateCheckerConfig configures where versions are read from.
type UpdateCheckerConfig struct {
	// VersionFile is the local file declaring the running version.
	VersionFile string
	// LastVersionURL serves the latest version file.
	LastVersionURL string
	// MirrorPrefix is prepended to LastVersionURL for the mirror request. Empty disables the mirror.
	MirrorPrefix   string
	PrimaryTimeout time.Duration
	MirrorTimeout  time.Duration
	Client         *http.Client
}

// UpdateChecker compares the local version file with the published one.
type UpdateChecker struct {
	cfg    UpdateCheckerConfig
	logger Logger
	group  singleflight.Group
}

// NewUpdateChecker builds a checker. Zero timeouts default to 1s primary and 5s mirror.
func NewUpdateChecker(cfg UpdateCheckerConfig, logger Logger) *UpdateChecker {
	if cfg.PrimaryTimeout <= 0 {
		cfg.PrimaryTimeout = time.Second
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = 5 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &UpdateChecker{cfg: cfg, logger: logger}
}

// Check reads the local version and races the primary and mirror sources.
// Only an unreadable local version is an error; remote failures yield an
// empty LastVersion. Concurrent callers share one check, which outlives the
// caller that started it.
func (u *UpdateChecker) Check(ctx context.Context) (UpdateInfo, error) {
	ch := u.group.DoChan("check", func() (interface{}, error) {
		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.checkTimeout())
		defer cancel()
		return u.check(checkCtx)
	})
	select {
	case <-ctx.Done():
		return UpdateInfo{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return UpdateInfo{}, res.Err
		}
		return res.Val.(UpdateInfo), nil
	}
}

func (u *UpdateChecker) checkTimeout() time.Duration {
	return max(u.cfg.PrimaryTimeout, u.cfg.MirrorTimeout) + time.Second
}

func (u *UpdateChecker) check(ctx context.Context) (UpdateInfo, error) {
	data, err := os.ReadFile(u.cfg.VersionFile)
	if err != nil {
		return UpdateInfo{}, errors.Wrap(errors.KindDomain, "system.check_update", "读取版本文件失败", err)
	}
	current, ok := ParseVersion(string(data))
	if !ok {
		return UpdateInfo{}, errors.New(errors.KindDomain, "system.check_update", "版本文件中未找到版本号")
	}

	body, err := u.fetchLatest(ctx)
	if err != nil {
		u.logger.Warn("获取最新版本失败: %v", err)
		return UpdateInfo{}, nil
	}
	latest, _ := ParseVersion(body)
	return UpdateInfo{
		HasNewVersion: HasNewVersion(current, latest),
		LastVersion:   latest,
		LastLog:       ParseChangeLog(body),
	}, nil
}

type fetchResult struct {
	body string
	err  error
}

// fetchLatest returns the first successful response of the primary and mirror requests.
func (u *UpdateChecker) fetchLatest(ctx context.Context) (string, error) {
	if u.cfg.LastVersionURL == "" {
		return "", stderrors.New("no version source configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sources := []struct {
		url     string
		timeout time.Duration
	}{
		{u.cfg.LastVersionURL, u.cfg.PrimaryTimeout},
	}
	if u.cfg.MirrorPrefix != "" {
		sources = append(sources, struct {
			url     string
			timeout time.Duration
		}{u.cfg.MirrorPrefix + u.cfg.LastVersionURL, u.cfg.MirrorTimeout})
	}

	results := make(chan fetchResult, len(sources))
	for _, src := range sources {
		go func(url string, timeout time.Duration) {
			body, err := u.fetch(ctx, url, timeout)
			results <- fetchResult{body: body, err: err}
		}(src.url, src.timeout)
	}

	var errs []error
	for range sources {
		res := <-results
		if res.err == nil {
			return res.body, nil
		}
		errs = append(errs, res.err)
	}
	return "", stderrors.Join(errs...)
}

func (u *UpdateChecker) fetch(ctx context.Context, url string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := u.cfg.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVersionFileSize))
	if err != nil {
		return "", err
	}
	if _, ok := ParseVersion(string(data)); !ok {
		return "", fmt.Errorf("%s: no version declared", url)
	}
	return string(data), nil
}

// ParseVersion extracts the declared version from a version file.
func ParseVersion(content string) (string, bool) {
	m := versionPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseChangeLog extracts the change log template literal, or "".
func ParseChangeLog(content string) string {
	m := changeLogPattern.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return m[1]
}

// HasNewVersion reports whether latest is a newer release than current.
// Unparseable versions never count as newer.
func HasNewVersion(current, latest string) bool {
	if latest == "" {
		return false
	}
	cur, err := version.NewVersion(current)
	if err != nil {
		return false
	}
	last, err := version.NewVersion(latest)
	if err != nil {
		return false
	}
	return cur.LessThan(last)
}

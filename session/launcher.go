package session

import (
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/browser"
	"github.com/raykavin/vegaview/core"
	"github.com/raykavin/vegaview/logger"
)

const defaultLaunchAttempts = 3

// BrowserLauncher opens URLs in the user's default browser, retrying briefly
// before reporting failure. Callers treat the error as non-fatal: the viewer
// stays reachable at the URL either way.
type BrowserLauncher struct {
	log      logger.Logger
	attempts int
}

// NewBrowserLauncher creates the real launcher used outside tests.
func NewBrowserLauncher(log logger.Logger) *BrowserLauncher {
	return &BrowserLauncher{
		log:      log,
		attempts: defaultLaunchAttempts,
	}
}

// Open implements core.Launcher.
func (b *BrowserLauncher) Open(url string) error {
	retry := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		if err = browser.OpenURL(url); err == nil {
			b.log.Infof("opened %s in default browser", url)
			return nil
		}

		wait := retry.Duration()
		b.log.WithError(err).Warnf("browser launch attempt %d/%d failed, retrying in %s",
			attempt, b.attempts, wait)
		time.Sleep(wait)
	}

	return fmt.Errorf("%w: %v", core.ErrLaunchFailed, err)
}

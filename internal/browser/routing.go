package browser

import (
	"log/slog"

	"github.com/playwright-community/playwright-go"
)

// blockedResourceTypes never affect the DOM the extractor reads.
var blockedResourceTypes = map[string]struct{}{
	"image": {},
	"media": {},
	"font":  {},
}

func shouldBlock(resourceType string) bool {
	_, ok := blockedResourceTypes[resourceType]
	return ok
}

// blockHeavyResources aborts image, media and font requests before they
// transfer. Everything else continues untouched.
func blockHeavyResources(bctx playwright.BrowserContext, logger *slog.Logger) error {
	return bctx.Route("**/*", func(route playwright.Route) {
		if shouldBlock(route.Request().ResourceType()) {
			if err := route.Abort("blockedbyclient"); err != nil {
				logger.Debug("failed to abort request", "url", route.Request().URL(), "error", err)
			}
			return
		}

		if err := route.Continue(); err != nil {
			logger.Debug("failed to continue request", "url", route.Request().URL(), "error", err)
		}
	})
}

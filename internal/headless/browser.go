package headless

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher starts a headless Chromium through Playwright. Every
// error is returned to the caller, which downgrades to static-only mode.
func PlaywrightLauncher(logger hclog.Logger) (Driver, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	log := logger.Named("headless")

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-gpu",
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-web-security",
			"--disable-extensions",
			"--disable-background-networking",
			"--disable-default-apps",
			"--disable-sync",
			"--disable-translate",
			"--hide-scrollbars",
			"--mute-audio",
			"--no-first-run",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		UserAgent:         playwright.String("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 CyberSage/2.0"),
		Viewport: &playwright.Size{
			Width:  1280,
			Height: 720,
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}

	return &playwrightDriver{pw: pw, browser: browser, context: context, page: page, log: log}, nil
}

type playwrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	log     hclog.Logger
}

func (d *playwrightDriver) Get(url string) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(60000),
	})
	return err
}

func (d *playwrightDriver) ExecuteScript(js string) (interface{}, error) {
	// Evaluate wants an expression or function; wrap statement blocks.
	wrapped := js
	if !strings.HasPrefix(strings.TrimSpace(js), "(") {
		wrapped = "(() => {" + js + "})()"
	}
	return d.page.Evaluate(wrapped)
}

func (d *playwrightDriver) FindElements(selector string) ([]Element, error) {
	handles, err := d.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	elements := make([]Element, 0, len(handles))
	for _, handle := range handles {
		elements = append(elements, &playwrightElement{handle: handle})
	}
	return elements, nil
}

func (d *playwrightDriver) Quit() error {
	if d.page != nil {
		d.page.Close()
	}
	if d.context != nil {
		d.context.Close()
	}
	if d.browser != nil {
		d.browser.Close()
	}
	if d.pw != nil {
		return d.pw.Stop()
	}
	return nil
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func (e *playwrightElement) Click() error {
	return e.handle.Click(playwright.ElementHandleClickOptions{
		Timeout: playwright.Float(5000),
	})
}

func (e *playwrightElement) Attribute(name string) string {
	value, err := e.handle.GetAttribute(name)
	if err != nil {
		return ""
	}
	return value
}

func (e *playwrightElement) Visible() bool {
	visible, err := e.handle.IsVisible()
	return err == nil && visible
}

func (e *playwrightElement) Enabled() bool {
	enabled, err := e.handle.IsEnabled()
	return err == nil && enabled
}

// Package headless drives a browser to discover script-rendered URLs, forms
// and API calls that static parsing cannot see. The driver's state machine
// does not tolerate interleaved commands, so discovery is strictly
// single-threaded and the browser never outlives the dynamic phase.
package headless

import (
	"github.com/hashicorp/go-hclog"
)

// Element is one DOM element returned by FindElements.
type Element interface {
	Click() error
	Attribute(name string) string
	Visible() bool
	Enabled() bool
}

// Driver is the narrow surface the crawler needs from a browser. Any failure
// behind it downgrades the crawl to static-only.
type Driver interface {
	Get(url string) error
	ExecuteScript(js string) (interface{}, error)
	FindElements(selector string) ([]Element, error)
	Quit() error
}

// Launcher starts a browser and hands back its driver. The crawler holds one
// so tests can substitute a fake.
type Launcher func(logger hclog.Logger) (Driver, error)

// Capture is one intercepted XHR/fetch call.
type Capture struct {
	Method string
	URL    string
}

// Result is what dynamic discovery found.
type Result struct {
	URLs     []string
	Requests []Capture
}

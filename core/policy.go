package core

import "fmt"

// DisplayPolicy controls when a show request triggers a browser launch.
type DisplayPolicy int

const (
	// DisplayEager launches or focuses a browser tab on every show call.
	DisplayEager DisplayPolicy = iota
	// DisplayLazy launches a browser tab only the first time an identifier
	// is shown; later updates rely on the change-notification channel.
	DisplayLazy
)

func (p DisplayPolicy) String() string {
	switch p {
	case DisplayEager:
		return "eager"
	case DisplayLazy:
		return "lazy"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParseDisplayPolicy converts the configuration string form.
func ParseDisplayPolicy(value string) (DisplayPolicy, error) {
	switch value {
	case "eager", "":
		return DisplayEager, nil
	case "lazy":
		return DisplayLazy, nil
	default:
		return DisplayEager, fmt.Errorf("invalid display policy: %q", value)
	}
}

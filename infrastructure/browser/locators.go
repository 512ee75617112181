package browser

import (
	"fmt"
	"strconv"

	"social_automation/domain/entities"
)

// playwrightSelector - selector engine syntax understood by Page.Locator
func playwrightSelector(s entities.Strategy) (string, error) {
	switch s.Kind {
	case entities.LocatorXPath:
		return "xpath=" + s.Value, nil
	case entities.LocatorText:
		if s.Tag != "" {
			return fmt.Sprintf(`%s:text-is(%s)`, s.Tag, strconv.Quote(s.Value)), nil
		}
		return "text=" + strconv.Quote(s.Value), nil
	}
	if css, ok := s.CSS(); ok {
		return "css=" + css, nil
	}
	return "", fmt.Errorf("unsupported locator kind %q", s.Kind)
}

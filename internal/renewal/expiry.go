// File: internal/renewal/expiry.go
package renewal

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// JST is the reference zone for the panel's renewal window. Eligibility is
// always computed in this zone regardless of the host environment.
var JST = time.FixedZone("JST", 9*60*60)

// expiryPattern matches the panel's locale-specific date rendering,
// e.g. "2024年6月10日".
var expiryPattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)

// ParseExpiry extracts the expiry date from detail-page row text.
func ParseExpiry(text string) (time.Time, error) {
	m := expiryPattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, fmt.Errorf("no expiry date in %q", text)
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, JST)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, fmt.Errorf("implausible expiry date %q", m[0])
	}
	return d, nil
}

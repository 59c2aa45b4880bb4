// File: internal/panel/classify.go
package panel

import (
	"strings"

	"github.com/nkrsz/renewctl/internal/renewal"
)

// The post-submission page is classified by phrase markers alone; the panel
// renders no machine-readable result. Error markers are checked first
// because an error page can still carry completion wording in its chrome.

var errorMarkers = []string{
	"認証コードが正しくありません", // the submitted code was wrong
	"正しく入力してください",
	"エラーが発生しました",
}

var successMarkers = []string{
	"完了しました",
	"継続しました",
	"延長しました",
}

// closedWindowMarkers indicate the renewal window is not yet open when they
// appear on the directly-navigated renewal page.
var closedWindowMarkers = []string{
	"延長期限",
	"期限まで",
}

// ClassifyContent maps rendered page text to a submission verdict. Text
// matching neither marker set is ambiguous and left for the caller's
// retry-or-give-up policy.
func ClassifyContent(content string) renewal.Verdict {
	for _, marker := range errorMarkers {
		if strings.Contains(content, marker) {
			return renewal.VerdictCodeRejected
		}
	}
	for _, marker := range successMarkers {
		if strings.Contains(content, marker) {
			return renewal.VerdictSuccess
		}
	}
	return renewal.VerdictAmbiguous
}

// IsWindowClosed reports whether the page explicitly states the renewal
// window has not opened yet.
func IsWindowClosed(content string) bool {
	for _, marker := range closedWindowMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// File: internal/panel/scripts.go
package panel

// All page-script literals live here. The workflow layer only ever calls
// named operations on Surface; nothing above this package embeds JS.

// expiryRowScript scans table rows for the usage-deadline row. The detail
// page also carries a usage-start row with an almost identical label, so
// that one is excluded explicitly.
const expiryRowScript = `
(() => {
	const rows = document.querySelectorAll('tr');
	for (const row of rows) {
		const text = row.innerText || row.textContent || '';
		if (text.includes('利用期限') && !text.includes('利用開始')) {
			return text;
		}
	}
	return '';
})()
`

// challengeImageScript extracts the inline challenge image as a data URL.
// The panel embeds the distorted-digits image directly rather than serving
// it by URL.
const challengeImageScript = `
(() => {
	const img = document.querySelector('img[src^="data:"]');
	return img ? img.src : '';
})()
`

// siteKeyScript reads the interactive challenge's site key when its widget
// is on the form.
const siteKeyScript = `
(() => {
	const el = document.querySelector('.cf-turnstile, [data-sitekey]');
	return el ? (el.getAttribute('data-sitekey') || '') : '';
})()
`

// widgetPointScript resolves a viewport coordinate inside the interactive
// widget's iframe, offset toward the checkbox edge where the widget draws
// its control.
const widgetPointScript = `
(() => {
	const container = document.querySelector('.cf-turnstile, [data-sitekey]');
	if (!container) {
		return null;
	}
	const frame = container.querySelector('iframe') ||
		container.closest('form')?.querySelector('iframe');
	const target = frame || container;
	const rect = target.getBoundingClientRect();
	if (rect.width === 0 || rect.height === 0) {
		return null;
	}
	return { x: rect.x + 30, y: rect.y + rect.height / 2 };
})()
`

// injectTokenScript writes a solved token into the hidden response field
// and fires the events the widget's own callback would. Takes the token as
// a JSON-encoded argument via fmt.
const injectTokenScript = `
((tokenValue) => {
	const input = document.querySelector('[name="cf-turnstile-response"]');
	if (!input) {
		return false;
	}
	input.value = tokenValue;
	input.dispatchEvent(new Event('input', { bubbles: true }));
	input.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s)
`

// tokenFieldLengthScript reads back the hidden field's value length so the
// caller can verify the injection actually landed.
const tokenFieldLengthScript = `
(() => {
	const input = document.querySelector('[name="cf-turnstile-response"]');
	return input && input.value ? input.value.length : 0;
})()
`

// submitCodeScript fills the solved digits into the code field and submits
// the form. Takes the code as a JSON-encoded argument via fmt.
const submitCodeScript = `
((codeValue) => {
	const input = document.querySelector('[placeholder="上の画像の数字を入力"]')
		|| document.querySelector('input[name="code"]')
		|| document.querySelector('input[name="number"]');
	if (!input) {
		return false;
	}
	input.value = codeValue;
	input.dispatchEvent(new Event('input', { bubbles: true }));
	input.dispatchEvent(new Event('change', { bubbles: true }));

	const form = input.closest('form');
	const control = (form || document).querySelector('button[type="submit"], input[type="submit"]')
		|| (form || document).querySelector('button');
	if (control) {
		control.click();
	} else if (form) {
		form.submit();
	} else {
		return false;
	}
	return true;
})(%s)
`

// pageTextScript returns the rendered page text for marker scanning.
const pageTextScript = `document.documentElement ? (document.documentElement.innerText || '') : ''`

// renewalControlLabel is the label of both the button and the link leading
// to the renewal form.
const renewalControlLabel = "引き続き無料VPSの利用を継続する"

// updateControlLabel is the detail page's update control.
const updateControlLabel = "更新する"

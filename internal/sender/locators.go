package sender

import "campaignflow/internal/browser"

// Locators lists, per logical UI element, the strategies tried in order.
// WhatsApp Web changes its markup often; new fallbacks belong here.
type Locators struct {
	Composer      []browser.Locator
	Attach        []browser.Locator
	MediaInput    []browser.Locator
	DocumentInput []browser.Locator
	SendButton    []browser.Locator
}

func DefaultLocators() Locators {
	return Locators{
		Composer: []browser.Locator{
			browser.XPath(`//div[@title="Type a message"] | //div[@data-tab="10"]`),
			browser.XPath(`//footer//div[@contenteditable="true"][@role="textbox"]`),
			browser.XPath(`//footer//div[@contenteditable="true"][@data-lexical-editor="true"]`),
			browser.CSS(`footer div.copyable-text[contenteditable="true"]`),
		},
		Attach: []browser.Locator{
			browser.XPath(`//button[@title="Attach"]`),
			browser.XPath(`//div[@title="Attach"]`),
			browser.XPath(`//span[@data-icon="clip"]`),
			browser.CSS(`button[aria-label="Attach"]`),
			browser.XPath(`//span[@data-icon="plus"] | //span[@data-icon="attach-menu-plus"]`),
		},
		MediaInput: []browser.Locator{
			browser.XPath(`//input[@accept="image/*,video/mp4,video/3gpp,video/quicktime"]`),
			browser.CSS(`input[type="file"][accept*="image"]`),
			browser.CSS(`input[type="file"][accept*="video"]`),
		},
		DocumentInput: []browser.Locator{
			browser.XPath(`//input[@accept="*"]`),
			browser.CSS(`input[type="file"]:not([accept*="image"])`),
		},
		SendButton: []browser.Locator{
			browser.XPath(`//div[@role="button" and @aria-label="Send"]`),
			browser.XPath(`//button[@aria-label="Send"]`),
			browser.XPath(`//span[@data-icon="send"]/ancestor::*[@role="button"][1]`),
			browser.XPath(`//span[@data-icon="send"]`),
		},
	}
}

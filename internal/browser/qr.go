package browser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/mdp/qrterminal/v3"
)

// qrContainer carries the pairing payload WhatsApp Web encodes in its QR
// canvas. It rotates roughly every 20 seconds until the code is scanned.
var qrContainer = CSS(`div[data-ref]`)

// qrPayload reads the current pairing payload, if the QR code is showing.
func (s *Session) qrPayload(ctx context.Context) (string, bool) {
	var ref string
	var ok bool
	err := s.run(ctx, time.Second,
		chromedp.AttributeValue(qrContainer.Selector, "data-ref", &ref, &ok, qrContainer.queryOptions()...),
	)
	if err != nil || !ok || ref == "" {
		return "", false
	}
	return ref, true
}

// qrPrinter renders pairing payloads to a terminal, skipping repeats.
type qrPrinter struct {
	out  io.Writer
	last string
}

func (p *qrPrinter) show(ref string) bool {
	if ref == p.last {
		return false
	}
	p.last = ref
	fmt.Fprintln(p.out, "Scan this QR code with WhatsApp (Linked devices > Link a device):")
	qrterminal.GenerateHalfBlock(ref, qrterminal.L, p.out)
	fmt.Fprintln(p.out)
	return true
}

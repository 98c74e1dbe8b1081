// Package testutil holds fakes and helpers shared by package tests.
package testutil

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"sync"
)

// PNG is the smallest prefix that content sniffing reports as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// Mailer records the last reset code sent to each address.
type Mailer struct {
	mu   sync.Mutex
	otps map[string]string
	sent int

	// Err, when set, fails every send.
	Err error
}

func NewMailer() *Mailer {
	return &Mailer{otps: make(map[string]string)}
}

func (m *Mailer) SendPasswordResetOTP(_ context.Context, to, otp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.otps[to] = otp
	m.sent++
	return nil
}

// OTP returns the last code sent to address.
func (m *Mailer) OTP(address string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.otps[address]
}

// Sent reports how many mails were delivered.
func (m *Mailer) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

// ErrUploadRejected is returned for files whose name contains "fail".
var ErrUploadRejected = errors.New("upstream rejected")

// Uploader fakes the image host. Files named with "fail" are rejected.
type Uploader struct {
	mu       sync.Mutex
	uploaded []string
}

func (u *Uploader) UploadImage(_ context.Context, fh *multipart.FileHeader, folder string) (string, error) {
	if strings.Contains(fh.Filename, "fail") {
		return "", ErrUploadRejected
	}
	u.mu.Lock()
	u.uploaded = append(u.uploaded, fh.Filename)
	u.mu.Unlock()
	return "https://img.example/" + folder + "/" + fh.Filename, nil
}

// Uploaded lists accepted file names in upload order.
func (u *Uploader) Uploaded() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.uploaded...)
}

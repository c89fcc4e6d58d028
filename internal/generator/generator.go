// Package generator renders operator-entered email addresses as QR images
// carrying the encoded token, and publishes them for the terminal UI.
package generator

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qrgate/internal/codec"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

var ErrEmptyEmail = errors.New("email is required")
var ErrNoImage = errors.New("no image generated yet")

const publicRetention = 5 * time.Minute

// Options are the fixed rendering options for every generated image.
type Options struct {
	PixelWidth int  // output PNG edge length in pixels
	Border     bool // quiet-zone margin around the code
}

// Result describes a generated image.
type Result struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Generator holds the last generated image. A failed render leaves the
// previous one in place.
type Generator struct {
	opts      Options
	publicDir string
	baseURL   string
	log       *zap.Logger

	mu   sync.Mutex
	last *Result
	png  []byte
}

func New(opts Options, publicDir, baseURL string, log *zap.Logger) *Generator {
	if opts.PixelWidth <= 0 {
		opts.PixelWidth = 256
	}
	_ = os.MkdirAll(publicDir, 0o755)
	return &Generator{
		opts:      opts,
		publicDir: publicDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
		log:       log,
	}
}

// Generate encodes the email, renders the token as a PNG and publishes it
// under the public dir. Empty input is a validation error; render or publish
// failures are returned and the previously generated image stays available.
func (g *Generator) Generate(email string) (*Result, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmptyEmail
	}

	token := codec.Encode(email)
	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	qr.DisableBorder = !g.opts.Border
	png, err := qr.PNG(g.opts.PixelWidth)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}

	url, err := g.publish(png)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Email:    email,
		Token:    token,
		URL:      url,
		Filename: downloadName(email),
	}

	g.mu.Lock()
	g.last = res
	g.png = png
	g.mu.Unlock()

	g.log.Info("qr image generated",
		zap.String("email", email),
		zap.Int("bytes", len(png)),
		zap.String("url", url))
	return res, nil
}

// Download returns the last generated PNG and its filename. Repeated
// downloads of the same address reuse the same name, last write wins.
func (g *Generator) Download() ([]byte, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return nil, "", ErrNoImage
	}
	return g.png, g.last.Filename, nil
}

// Last returns the most recent result, or nil.
func (g *Generator) Last() *Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Verification is the operator-facing round-trip demonstration.
type Verification struct {
	Email   string `json:"email"`
	Token   string `json:"token"`
	Decoded string `json:"decoded"`
	Match   bool   `json:"match"`
}

// Verify shows that decoding the encoded email yields the email back.
func (g *Generator) Verify(email string) Verification {
	token := codec.Encode(email)
	decoded := codec.Decode(token)
	return Verification{
		Email:   email,
		Token:   token,
		Decoded: decoded,
		Match:   decoded == email,
	}
}

// publish writes the image under the public dir with a content-derived name
// and schedules its removal. Serving happens via the /public route.
func (g *Generator) publish(png []byte) (string, error) {
	hash := md5.Sum(png)
	name := hex.EncodeToString(hash[:]) + ".png"
	path := filepath.Join(g.publicDir, name)

	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("publish qr: %w", err)
	}

	go func() {
		time.Sleep(publicRetention)
		os.Remove(path)
	}()

	return g.baseURL + "/public/" + name, nil
}

// downloadName derives a filesystem-safe attachment name from the email.
func downloadName(email string) string {
	repl := strings.NewReplacer("@", "_at_", "/", "_", "\\", "_", ":", "_", " ", "_")
	return "qr-" + repl.Replace(email) + ".png"
}

package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yangga/vision-runner/pkg/logging"
)

// FileSim is a Producer that cycles through still images from a directory at
// a fixed rate. It stands in for a real camera during development and in
// tests.
type FileSim struct {
	log      logging.Logger
	interval time.Duration
	images   []image.Image
	handler  Handler

	stopOnce sync.Once
	stop     chan struct{}
}

// NewFileSim creates a simulator that replays every decodable image under
// dir at the given frames per second. The directory must contain at least
// one decodable image.
func NewFileSim(log logging.Logger, dir string, fps float64, handler Handler) (*FileSim, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("invalid fps %v", fps)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read frame directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".gif":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var images []image.Image
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			log.Warnf("Skipping undecodable frame image %s: %v", name, err)
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no decodable images in %s", dir)
	}

	return &FileSim{
		log:      log,
		interval: time.Duration(float64(time.Second) / fps),
		images:   images,
		handler:  handler,
		stop:     make(chan struct{}),
	}, nil
}

// Run delivers frames serially until the context is cancelled or Stop is
// called.
func (s *FileSim) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			frame := Frame{
				Image:     s.images[seq%uint64(len(s.images))],
				Seq:       seq,
				Timestamp: time.Now(),
			}
			seq++
			s.handler(frame)
		}
	}
}

// Stop halts frame delivery. Idempotent.
func (s *FileSim) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

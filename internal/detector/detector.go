// Package detector connects trip scoring to a sign recognition model. The
// model itself runs elsewhere; this package only moves images and detections.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"tripscore/internal/model"
)

// Detector classifies the signs visible in one encoded image. Returned
// detections carry no timestamp.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]model.RawDetection, error)
}

// Func adapts a plain function to Detector.
type Func func(ctx context.Context, image []byte) ([]model.RawDetection, error)

func (f Func) Detect(ctx context.Context, image []byte) ([]model.RawDetection, error) {
	return f(ctx, image)
}

// Frame is one captured image and when it was taken.
type Frame struct {
	Timestamp time.Time
	Image     []byte
	Name      string
}

// DetectFrames runs d over frames with at most workers in flight and stamps
// each detection with its frame time. The result is ordered by timestamp.
func DetectFrames(ctx context.Context, d Detector, frames []Frame, workers int) ([]model.RawDetection, error) {
	if d == nil {
		return nil, errors.New("detector is nil")
	}
	if workers <= 0 {
		workers = 1
	}
	perFrame := make([][]model.RawDetection, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range frames {
		g.Go(func() error {
			dets, err := d.Detect(gctx, frames[i].Image)
			if err != nil {
				return fmt.Errorf("frame %s: %w", frameName(frames[i], i), err)
			}
			for j := range dets {
				dets[j].Timestamp = frames[i].Timestamp
			}
			perFrame[i] = dets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]model.RawDetection, 0, len(frames))
	for _, dets := range perFrame {
		out = append(out, dets...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func frameName(f Frame, i int) string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("#%d", i)
}

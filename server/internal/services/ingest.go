package services

import (
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/gaze"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"go.uber.org/zap"
)

// GazeIngestor moves samples from a tracker's stream into a session's gaze
// buffer.
type GazeIngestor struct {
	log     *zap.Logger
	buffer  *gaze.Buffer
	samples <-chan models.RawGazeSample
	done    chan struct{}
}

func NewGazeIngestor(log *zap.Logger, buffer *gaze.Buffer, samples <-chan models.RawGazeSample) *GazeIngestor {
	return &GazeIngestor{
		log:     log,
		buffer:  buffer,
		samples: samples,
		done:    make(chan struct{}),
	}
}

// Start drains the stream in a goroutine until the tracker closes it.
func (g *GazeIngestor) Start() {
	g.log.Debug("Starting gaze ingestion")
	go func() {
		defer close(g.done)
		recorded, dropped := 0, 0
		for s := range g.samples {
			if g.buffer.Record(s.X, s.Y) {
				recorded++
			} else {
				dropped++
			}
		}
		g.log.Info("Gaze stream closed", zap.Int("recorded", recorded), zap.Int("dropped", dropped))
	}()
}

// Done is closed once the stream has been fully drained.
func (g *GazeIngestor) Done() <-chan struct{} {
	return g.done
}

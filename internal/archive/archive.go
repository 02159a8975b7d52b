// Package archive keeps a write-only record of revealed rounds. Nothing in
// the process reads it back; room state still lives only in memory.
package archive

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Round struct {
	RoomID       string
	RoomName     string
	Issue        string
	CardSet      string
	Average      *float64
	Distribution map[string]int
	Voters       int
	RevealedAt   time.Time
}

type Sink interface {
	SaveRound(ctx context.Context, r Round) error
}

type Discard struct{}

func (Discard) SaveRound(context.Context, Round) error { return nil }

const (
	DefaultBuffer = 128
	writeTimeout  = 5 * time.Second
)

// Recorder hands rounds to a Sink on its own goroutine so the caller never
// waits on the database.
type Recorder struct {
	sink  Sink
	queue chan Round
	log   *zap.Logger
}

func NewRecorder(sink Sink, log *zap.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Recorder{
		sink:  sink,
		queue: make(chan Round, buffer),
		log:   log.Named("archive"),
	}
}

// Record enqueues r and reports whether it was accepted. A full queue drops r.
func (rec *Recorder) Record(r Round) bool {
	select {
	case rec.queue <- r:
		return true
	default:
		rec.log.Warn("archive queue full, dropping round", zap.String("room_id", r.RoomID))
		return false
	}
}

// Run writes queued rounds until ctx is cancelled, then flushes what is left.
func (rec *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			rec.flush()
			return nil
		case r := <-rec.queue:
			rec.write(context.WithoutCancel(ctx), r)
		}
	}
}

func (rec *Recorder) flush() {
	for {
		select {
		case r := <-rec.queue:
			rec.write(context.Background(), r)
		default:
			return
		}
	}
}

func (rec *Recorder) write(ctx context.Context, r Round) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := rec.sink.SaveRound(ctx, r); err != nil {
		rec.log.Error("archive round", zap.String("room_id", r.RoomID), zap.Error(err))
	}
}

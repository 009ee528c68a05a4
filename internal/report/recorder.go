// Package report persists executed orders for offline stats tooling.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rame0/tinkoff-robot/internal/broker"
)

// Trade is one submitted order with the bookkeeping around it.
type Trade struct {
	Figi          string           `json:"figi"`
	Direction     broker.Direction `json:"direction"`
	Lots          int              `json:"lots"`
	Price         float64          `json:"price"`
	ProfitPercent float64          `json:"profit_percent,omitempty"`
	TotalProfit   float64          `json:"total_profit,omitempty"`
	Time          time.Time        `json:"time"`
}

// Recorder appends trades somewhere for later analysis.
type Recorder interface {
	Record(Trade)
}

// JSONLRecorder appends trades as JSON lines.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{file: file, enc: json.NewEncoder(file)}, nil
}

// Record writes a single trade to the underlying JSONL file.
func (r *JSONLRecorder) Record(trade Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(trade)
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

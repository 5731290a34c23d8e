package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
)

const Clear = "\033[2K\r"

type ProgressBar struct {
	total       int
	current     int
	startTime   time.Time
	description string
	bar         progress.Model
	mu          sync.Mutex
}

func NewProgressBar(total int, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		startTime:   time.Now(),
		description: description,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
	}
}

func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
	pb.render()
}

// PrintMsg prints msg above the bar and redraws it.
func (pb *ProgressBar) PrintMsg(msg string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	mu.Lock()
	fmt.Fprint(out, Clear)
	fmt.Fprintln(out, msg)
	mu.Unlock()
	pb.render()
}

func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	pb.render()
	mu.Lock()
	fmt.Fprintln(out)
	mu.Unlock()
}

func (pb *ProgressBar) percent() float64 {
	if pb.total <= 0 {
		return 1
	}
	p := float64(pb.current) / float64(pb.total)
	if p > 1 {
		p = 1
	}
	return p
}

// Line renders the current state without writing it.
func (pb *ProgressBar) Line() string {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.line()
}

func (pb *ProgressBar) line() string {
	elapsed := time.Since(pb.startTime)
	remaining := time.Duration(0)
	if pb.current > 0 && pb.current < pb.total {
		remaining = elapsed / time.Duration(pb.current) * time.Duration(pb.total-pb.current)
	}
	eta := fmt.Sprintf("%02dm%02ds", int(remaining.Minutes()), int(remaining.Seconds())%60)
	return fmt.Sprintf("%s %s %3.0f%% | %d/%d | ETA: %s",
		pb.description, pb.bar.ViewAs(pb.percent()), pb.percent()*100, pb.current, pb.total, eta)
}

func (pb *ProgressBar) render() {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprint(out, Clear+pb.line())
}

// Package archive writes captured frames to rotating pcap files on the
// sensor host, so traffic around an incident can be replayed later through
// the offline analyzer.
package archive

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"NetSentry/internal/config"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// frame is one captured packet queued for the archive writer.
type frame struct {
	ci   gopacket.CaptureInfo
	data []byte
}

// Archiver manages a background goroutine writing packets to disk.
type Archiver struct {
	dir          string
	snapLen      uint32
	maxFileBytes int64

	frameChan chan frame
	stopChan  chan struct{}
	doneChan  chan struct{}
	wg        sync.WaitGroup

	// Owned by the writer goroutine once started.
	file    *os.File
	writer  *pcapgo.Writer
	written int64
	seq     int
}

// NewArchiver creates and starts an archiver writing under cfg.Dir.
func NewArchiver(cfg config.ArchiveConfig, snapLen int32) (*Archiver, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 10000
	}
	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	if snapLen <= 0 {
		snapLen = 1600
	}

	a := &Archiver{
		dir:          cfg.Dir,
		snapLen:      uint32(snapLen),
		maxFileBytes: maxBytes,
		frameChan:    make(chan frame, queueSize),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}

	if err := a.rotate(); err != nil {
		return nil, err
	}
	a.start()
	return a, nil
}

func (a *Archiver) start() {
	log.Printf("Capture archiver started, writing to: %s", a.file.Name())

	// A single writer keeps packets in file order.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run()
	}()

	go func() {
		defer close(a.doneChan)
		<-a.stopChan
		close(a.frameChan)
		a.wg.Wait()
		if err := a.file.Close(); err != nil {
			log.Printf("Archiver: Error closing capture file: %v", err)
		}
		log.Println("Capture archiver stopped and file closed.")
	}()
}

func (a *Archiver) run() {
	for fr := range a.frameChan {
		if a.written >= a.maxFileBytes {
			if err := a.rotate(); err != nil {
				log.Printf("Archiver: Failed to rotate capture file: %v", err)
				continue
			}
		}
		if err := a.writer.WritePacket(fr.ci, fr.data); err != nil {
			log.Printf("Archiver: Error writing packet: %v", err)
			continue
		}
		// Classic pcap adds a 16 byte record header per packet.
		a.written += 16 + int64(len(fr.data))
	}
}

// rotate closes the current capture file, if any, and opens a fresh one.
func (a *Archiver) rotate() error {
	if a.file != nil {
		if err := a.file.Close(); err != nil {
			log.Printf("Archiver: Error closing rotated file: %v", err)
		}
	}
	a.seq++
	fileName := fmt.Sprintf("%s_%04d.pcap", time.Now().Format("2006-01-02_15-04-05"), a.seq)
	file, err := os.OpenFile(filepath.Join(a.dir, fileName), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	w := pcapgo.NewWriter(file)
	if err := w.WriteFileHeader(a.snapLen, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	a.file = file
	a.writer = w
	a.written = 24
	return nil
}

// Enqueue queues one captured frame for archiving. The data must not be
// modified after the call. Drops the frame when the queue is full.
func (a *Archiver) Enqueue(ci gopacket.CaptureInfo, data []byte) {
	select {
	case a.frameChan <- frame{ci: ci, data: data}:
	default:
		log.Println("Archiver: Queue is full, dropping frame.")
	}
}

// Stop drains the queue, closes the current capture file and blocks until
// both are done. Enqueue must not be called after Stop.
func (a *Archiver) Stop() {
	close(a.stopChan)
	<-a.doneChan
}

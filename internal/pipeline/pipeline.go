package pipeline

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"NetSentry/internal/alert"
	"NetSentry/internal/config"
	"NetSentry/internal/detect"
	"NetSentry/internal/feature"
	"NetSentry/internal/metrics"
	"NetSentry/internal/model"
	"NetSentry/internal/stats"
)

// Deps are the external collaborators injected into the pipeline. Any of
// them may be nil or empty; the pipeline then runs fully in memory.
type Deps struct {
	AlertStore    model.AlertStore
	SnapshotStore model.SnapshotStore
	Broadcasters  []model.Broadcaster
}

// Pipeline wires capture input through the detection layers: a bounded
// packet queue drained by a worker pool, the detector coordinator, the
// alert sink and the stats aggregator, plus a sweeper that evicts idle
// tracker state. When the queue is full the newest packet is dropped and
// counted; intake never blocks the capture path.
type Pipeline struct {
	queue      chan *model.PacketInfo
	numWorkers int
	workerWg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	trackers    *feature.Trackers
	coordinator *detect.Coordinator
	anomaly     *detect.AnomalyDetector
	classifier  *detect.ClassificationDetector
	sink        *alert.Sink
	stats       *stats.Aggregator

	sweepInterval time.Duration
	done          chan struct{}
	sweeperWg     sync.WaitGroup
}

// New builds a pipeline from the configuration. The only fatal condition
// is unusable configuration, including a configured classifier artifact
// that does not load; detectors that merely lack state come up in their
// degraded modes instead.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	detectorTimeout, err := parseDuration("engine detector_timeout", cfg.Engine.DetectorTimeout)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := parseDuration("engine sweep_interval", cfg.Engine.SweepInterval)
	if err != nil {
		return nil, err
	}
	idleTimeout, err := parseDuration("trackers connection_idle_timeout", cfg.Trackers.ConnectionIdleTimeout)
	if err != nil {
		return nil, err
	}
	loginWindow, err := parseDuration("trackers login_window", cfg.Trackers.LoginWindow)
	if err != nil {
		return nil, err
	}
	accessWindow, err := parseDuration("trackers access_window", cfg.Trackers.AccessWindow)
	if err != nil {
		return nil, err
	}
	historyWindow, err := parseDuration("trackers history_window", cfg.Trackers.HistoryWindow)
	if err != nil {
		return nil, err
	}
	retrainInterval, err := parseDuration("anomaly retrain_interval", cfg.Anomaly.RetrainInterval)
	if err != nil {
		return nil, err
	}
	reloadInterval, err := parseDuration("classifier reload_interval", cfg.Classifier.ReloadInterval)
	if err != nil {
		return nil, err
	}
	dedupWindow, err := parseDuration("alerts dedup_window", cfg.Alerts.DedupWindow)
	if err != nil {
		return nil, err
	}
	flushInterval, err := parseDuration("stats flush_interval", cfg.Stats.FlushInterval)
	if err != nil {
		return nil, err
	}

	trackers := feature.NewTrackers(feature.TrackerOptions{
		ConnectionIdleTimeout: idleTimeout,
		LoginWindow:           loginWindow,
		AccessWindow:          accessWindow,
		NumShards:             cfg.Trackers.NumShards,
		HistorySize:           cfg.Trackers.HistorySize,
		HistoryWindow:         historyWindow,
	})
	extractor := feature.NewExtractor(trackers, cfg.Features.Extended)

	rules := append(detect.DefaultRules(), rulesFromConfig(cfg.Signature.Rules)...)
	signature := detect.NewSignatureDetector(rules, detect.AggregateThresholds{
		PortScanPorts: cfg.Signature.PortScanThreshold,
		DoSPacketRate: cfg.Signature.DoSPacketRate,
		ExfilBytes:    cfg.Signature.ExfilBytes,
	})

	anomaly := detect.NewAnomalyDetector(cfg.Anomaly.MinSamples, cfg.Anomaly.MaxSamples, cfg.Anomaly.Threshold, retrainInterval)

	classifier, err := detect.NewClassificationDetector(cfg.Classifier.ModelPath, cfg.Classifier.Threshold, reloadInterval)
	if err != nil {
		return nil, fmt.Errorf("classification detector: %w", err)
	}

	detectors := []model.Detector{signature, anomaly, classifier}
	coordinator := detect.NewCoordinator(extractor, trackers.History, detectors, detectorTimeout)

	sink := alert.NewSink(dedupWindow, cfg.Alerts.QueueSize, cfg.Alerts.PersistRetries, deps.AlertStore, deps.Broadcasters...)
	aggregator := stats.NewAggregator(flushInterval, deps.SnapshotStore, trackers.Connections.Active)

	numWorkers := cfg.Engine.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	queueCapacity := cfg.Engine.QueueCapacity
	if queueCapacity <= 0 {
		queueCapacity = 10000
	}

	return &Pipeline{
		queue:         make(chan *model.PacketInfo, queueCapacity),
		numWorkers:    numWorkers,
		trackers:      trackers,
		coordinator:   coordinator,
		anomaly:       anomaly,
		classifier:    classifier,
		sink:          sink,
		stats:         aggregator,
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
	}, nil
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", name)
	}
	return d, nil
}

func rulesFromConfig(defs []config.SignatureRuleDef) []detect.Rule {
	rules := make([]detect.Rule, 0, len(defs))
	for _, def := range defs {
		confidence := def.Confidence
		if confidence <= 0 {
			confidence = 0.8
		}
		rules = append(rules, detect.Rule{
			Name:        def.Name,
			Description: def.Description,
			Severity:    model.ParseSeverity(def.Severity),
			Confidence:  confidence,
			Target:      def.Target,
			Patterns:    def.Patterns,
		})
	}
	return rules
}

// Start launches the detector maintenance loops, the stats flusher, the
// sweeper and the packet workers.
func (p *Pipeline) Start() {
	p.anomaly.Start()
	p.classifier.Start()
	p.stats.Start()

	p.sweeperWg.Add(1)
	go p.runSweeper()

	p.workerWg.Add(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		go p.worker()
	}
	log.Printf("Pipeline started with %d workers and a queue of %d.", p.numWorkers, cap(p.queue))
}

// Enqueue hands a packet to the worker pool without blocking. A full
// queue drops the newest packet and reports false; capture keeps priority
// over analysis.
func (p *Pipeline) Enqueue(pkt *model.PacketInfo) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- pkt:
		metrics.QueueDepth.Inc()
		return true
	default:
		metrics.PacketsDropped.Inc()
		p.stats.RecordDrop()
		return false
	}
}

// EnqueueBlocking queues a packet, waiting for space instead of dropping.
// Offline replay uses this so a slow pipeline never loses packets. Returns
// false only after Stop.
func (p *Pipeline) EnqueueBlocking(pkt *model.PacketInfo) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.queue <- pkt
	metrics.QueueDepth.Inc()
	return true
}

func (p *Pipeline) worker() {
	defer p.workerWg.Done()
	for pkt := range p.queue {
		metrics.QueueDepth.Dec()
		p.process(pkt)
	}
}

func (p *Pipeline) process(pkt *model.PacketInfo) {
	p.stats.RecordPacket(pkt)
	metrics.PacketsProcessed.Inc()

	detections := p.coordinator.Analyze(pkt)
	if len(detections) == 0 {
		return
	}
	p.stats.RecordDetections(len(detections))
	for _, d := range detections {
		metrics.Detections.WithLabelValues(string(d.Kind)).Inc()
		p.sink.Submit(d)
	}
}

func (p *Pipeline) runSweeper() {
	defer p.sweeperWg.Done()
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			evicted := p.trackers.Sweep(now)
			expired := p.sink.Sweep(now)
			if evicted > 0 || expired > 0 {
				log.Printf("Sweeper evicted %d tracker entries and %d expired alert index entries.", evicted, expired)
			}
		case <-p.done:
			return
		}
	}
}

// Stop shuts the pipeline down in dependency order. Buffered packets are
// fully processed, the open stats window is flushed and the alert
// persistence queue is drained before Stop returns. Stop is idempotent.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	log.Println("Pipeline stopping...")

	// 1. Let the workers drain the buffered packets.
	p.workerWg.Wait()

	// 2. Halt the sweeper.
	close(p.done)
	p.sweeperWg.Wait()

	// 3. Stop the detector maintenance loops.
	p.anomaly.Stop()
	p.classifier.Stop()

	// 4. Final stats flush, then drain alert persistence.
	p.stats.Stop()
	p.sink.Close()

	log.Println("Pipeline stopped.")
}

// Stats exposes the aggregator so the API can peek at the open window.
func (p *Pipeline) Stats() *stats.Aggregator {
	return p.stats
}

// AnomalyState reports the anomaly detector's lifecycle state.
func (p *Pipeline) AnomalyState() detect.AnomalyState {
	return p.anomaly.State()
}

// ClassifierReady reports whether a classification model is loaded.
func (p *Pipeline) ClassifierReady() bool {
	return p.classifier.Ready()
}

// ActiveConnections reports the live connection count.
func (p *Pipeline) ActiveConnections() uint64 {
	return p.trackers.Connections.Active()
}
